// Package ai reads comment text with keyword heuristics. It stands in for a
// model-backed analyser and needs no network access.
package ai

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"github.com/lorrc/ups-collab/internal/core/domain"
	"github.com/lorrc/ups-collab/internal/core/ports"
)

// Categories reported by the analyser.
const (
	CategoryBug      = "bug"
	CategoryDesign   = "design"
	CategoryContent  = "content"
	CategoryQuestion = "question"
	CategoryGeneral  = "general"
)

// Sentiments reported by the analyser.
const (
	SentimentPositive = "positive"
	SentimentNeutral  = "neutral"
	SentimentNegative = "negative"
)

const maxSummaryLength = 120

var (
	categoryKeywords = []struct {
		category string
		words    []string
	}{
		{CategoryBug, []string{"bug", "broken", "crash", "error", "fails", "failing", "doesn't work", "not working", "glitch"}},
		{CategoryDesign, []string{"color", "colour", "font", "layout", "spacing", "align", "logo", "design", "contrast", "blurry"}},
		{CategoryContent, []string{"typo", "copy", "text", "wording", "spelling", "translation", "caption"}},
	}

	positiveWords = []string{"great", "good", "love", "nice", "perfect", "excellent", "thanks", "awesome", "clean"}
	negativeWords = []string{"bad", "ugly", "wrong", "broken", "hate", "confusing", "blurry", "slow", "poor", "crash"}
	urgentWords   = []string{"urgent", "asap", "blocker", "immediately", "critical", "launch"}
	actionMarkers = []string{"please", "should", "need to", "needs to", "must", "can we", "could you"}
)

// Analyzer is a keyword-driven ports.AIBackend.
type Analyzer struct{}

var _ ports.AIBackend = (*Analyzer)(nil)

// NewAnalyzer creates an Analyzer.
func NewAnalyzer() *Analyzer {
	return &Analyzer{}
}

// AnalyzeComment classifies a single comment.
func (a *Analyzer) AnalyzeComment(ctx context.Context, comment domain.Comment) (*domain.CommentAnalysis, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	text := strings.ToLower(comment.Content)
	analysis := &domain.CommentAnalysis{
		Sentiment:   sentiment(text),
		Category:    category(text),
		Summary:     summarize(comment.Content),
		ActionItems: actionItems(comment.Content),
	}
	analysis.Urgency = urgency(text, analysis, comment.Priority)
	return analysis, nil
}

// GenerateSuggestions proposes replies for the comment's category.
func (a *Analyzer) GenerateSuggestions(ctx context.Context, comment domain.Comment) ([]string, error) {
	analysis, err := a.AnalyzeComment(ctx, comment)
	if err != nil {
		return nil, err
	}

	var suggestions []string
	switch analysis.Category {
	case CategoryBug:
		suggestions = []string{
			"Thanks for reporting this. Can you share the steps to reproduce it?",
			"We're looking into it and will update this thread once it's fixed.",
		}
	case CategoryDesign:
		suggestions = []string{
			"Good catch. I'll update the design and share a new version.",
			"Could you point to an example of the look you have in mind?",
		}
	case CategoryContent:
		suggestions = []string{
			"Thanks, I'll correct the text.",
			"Do you have the preferred wording?",
		}
	case CategoryQuestion:
		suggestions = []string{
			"Good question. Let me check and get back to you.",
		}
	default:
		suggestions = []string{
			"Thanks for the feedback!",
			"Noted. I'll follow up on this.",
		}
	}

	if analysis.Urgency == domain.PriorityUrgent {
		suggestions = append([]string{"On it now. I'll prioritise this."}, suggestions...)
	}
	return suggestions, nil
}

// GetAIInsights aggregates the analysis of every comment on a resource.
func (a *Analyzer) GetAIInsights(ctx context.Context, resourceID string, comments []domain.Comment) (*domain.AIInsights, error) {
	insights := &domain.AIInsights{
		ResourceID:    resourceID,
		TotalComments: len(comments),
		ByCategory:    make(map[string]int),
		BySentiment:   make(map[string]int),
		ByPriority:    make(map[domain.Priority]int),
	}

	urgentOpen := 0
	for _, c := range comments {
		analysis, err := a.AnalyzeComment(ctx, c)
		if err != nil {
			return nil, err
		}
		insights.ByCategory[analysis.Category]++
		insights.BySentiment[analysis.Sentiment]++
		insights.ByPriority[c.Priority]++

		if !c.IsResolved() {
			insights.OpenComments++
			if analysis.Urgency == domain.PriorityUrgent {
				urgentOpen++
			}
		}
	}

	insights.Recommendation = recommend(insights, urgentOpen)
	return insights, nil
}

func recommend(insights *domain.AIInsights, urgentOpen int) string {
	switch {
	case insights.TotalComments == 0:
		return "No feedback yet."
	case urgentOpen > 0:
		return fmt.Sprintf("Address %d urgent open comment(s) first.", urgentOpen)
	case insights.OpenComments == 0:
		return "All feedback is resolved."
	case insights.BySentiment[SentimentNegative] > insights.BySentiment[SentimentPositive]:
		return "Feedback is mostly negative; review the open bug and design comments."
	default:
		return fmt.Sprintf("%d open comment(s) left to resolve.", insights.OpenComments)
	}
}

func sentiment(text string) string {
	score := countMatches(text, positiveWords) - countMatches(text, negativeWords)
	switch {
	case score > 0:
		return SentimentPositive
	case score < 0:
		return SentimentNegative
	}
	return SentimentNeutral
}

func category(text string) string {
	best, bestScore := CategoryGeneral, 0
	for _, c := range categoryKeywords {
		if score := countMatches(text, c.words); score > bestScore {
			best, bestScore = c.category, score
		}
	}
	if bestScore == 0 && strings.Contains(text, "?") {
		return CategoryQuestion
	}
	return best
}

func urgency(text string, analysis *domain.CommentAnalysis, priority domain.Priority) domain.Priority {
	if countMatches(text, urgentWords) > 0 || priority == domain.PriorityUrgent {
		return domain.PriorityUrgent
	}
	if analysis.Category == CategoryBug && analysis.Sentiment == SentimentNegative {
		return domain.PriorityHigh
	}
	if priority == "" {
		return domain.PriorityMedium
	}
	return priority
}

// summarize returns the first sentence, shortened on a word boundary.
func summarize(content string) string {
	content = strings.Join(strings.Fields(content), " ")
	if i := strings.IndexAny(content, ".!?"); i >= 0 {
		content = content[:i+1]
	}

	runes := []rune(content)
	if len(runes) <= maxSummaryLength {
		return content
	}
	cut := maxSummaryLength
	for cut > 0 && !unicode.IsSpace(runes[cut]) {
		cut--
	}
	if cut == 0 {
		cut = maxSummaryLength
	}
	return strings.TrimSpace(string(runes[:cut])) + "…"
}

func actionItems(content string) []string {
	var items []string
	for _, sentence := range splitSentences(content) {
		if countMatches(strings.ToLower(sentence), actionMarkers) > 0 {
			items = append(items, sentence)
		}
	}
	return items
}

func splitSentences(content string) []string {
	parts := strings.FieldsFunc(content, func(r rune) bool {
		return r == '.' || r == '!' || r == '?' || r == '\n'
	})
	sentences := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			sentences = append(sentences, s)
		}
	}
	return sentences
}

func countMatches(text string, words []string) int {
	n := 0
	for _, w := range words {
		if strings.Contains(text, w) {
			n++
		}
	}
	return n
}

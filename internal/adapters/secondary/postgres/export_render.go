package postgres

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strconv"
	"time"

	"github.com/goccy/go-json"

	"github.com/lorrc/ups-collab/internal/core/domain"
	apperrors "github.com/lorrc/ups-collab/internal/core/errors"
)

var csvHeader = []string{
	"id", "status", "priority", "author", "assignee", "content", "version", "created_at", "updated_at",
	"media_type", "position", "parent_id", "mentions", "reactions",
}

// renderExport serialises comments in the requested format and returns the
// artifact with its content type.
func renderExport(format domain.ExportFormat, comments []domain.Comment) ([]byte, string, error) {
	switch format {
	case domain.ExportCSV:
		data, err := renderCSV(comments)
		return data, "text/csv", err
	case domain.ExportJSON:
		data, err := json.MarshalIndent(comments, "", "  ")
		return data, "application/json", err
	}
	return nil, "", fmt.Errorf("%w: %q", apperrors.ErrInvalidExportFormat, format)
}

func renderCSV(comments []domain.Comment) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write(csvHeader); err != nil {
		return nil, err
	}
	for _, c := range comments {
		assignee, parent := "", ""
		if c.Assignee != nil {
			assignee = c.Assignee.String()
		}
		if c.ParentID != nil {
			parent = c.ParentID.String()
		}
		position := ""
		if c.Position != nil {
			raw, err := json.Marshal(c.Position)
			if err != nil {
				return nil, fmt.Errorf("encode position: %w", err)
			}
			position = string(raw)
		}
		record := []string{
			c.ID.String(),
			string(c.Status),
			string(c.Priority),
			c.Author.Name,
			assignee,
			c.Content,
			strconv.FormatInt(c.Version, 10),
			c.CreatedAt.Format(time.RFC3339),
			c.UpdatedAt.Format(time.RFC3339),
			string(c.MediaType),
			position,
			parent,
			strconv.Itoa(len(c.Mentions)),
			strconv.Itoa(len(c.Reactions)),
		}
		if err := w.Write(record); err != nil {
			return nil, err
		}
	}

	w.Flush()
	return buf.Bytes(), w.Error()
}

// selectForExport drops resolved comments unless they were asked for.
func selectForExport(comments []domain.Comment, includeResolved bool) []domain.Comment {
	if includeResolved {
		return comments
	}
	out := make([]domain.Comment, 0, len(comments))
	for _, c := range comments {
		if !c.IsResolved() {
			out = append(out, c)
		}
	}
	return out
}

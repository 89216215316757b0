package production

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"sceneforge/internal/textutil"
)

// ExportFormat selects the encoding used by Export.
type ExportFormat string

const (
	ExportJSON ExportFormat = "json"
	ExportCSV  ExportFormat = "csv"
)

// ParseExportFormat converts a string into a supported ExportFormat.
func ParseExportFormat(value string) (ExportFormat, error) {
	switch ExportFormat(strings.ToLower(strings.TrimSpace(value))) {
	case ExportJSON, "":
		return ExportJSON, nil
	case ExportCSV:
		return ExportCSV, nil
	default:
		return "", fmt.Errorf("unsupported export format %q", value)
	}
}

// ExportFileName names an export of p, e.g. "harbor-dawn-42.csv".
func ExportFileName(p *Production, format ExportFormat) string {
	name := textutil.Slug(p.Title)
	if id := strings.TrimSpace(p.ID); id != "" {
		name += "-" + textutil.Slug(id)
	}
	return name + "." + string(format)
}

// ExportDocument is the JSON export payload.
type ExportDocument struct {
	Title         string    `json:"title"`
	Scenes        []Scene   `json:"scenes"`
	TotalDuration int       `json:"total_duration"`
	ExportedAt    time.Time `json:"exported_at"`
}

var csvHeader = []string{
	"number", "duration", "description", "visual_prompt", "video_prompt",
	"camera_movement", "mood", "dialogue", "status", "image_url", "video_url", "error",
}

// Export writes p to w in the requested format.
func Export(w io.Writer, p *Production, format ExportFormat, now time.Time) error {
	if p == nil {
		return fmt.Errorf("export: production is nil")
	}
	switch format {
	case ExportJSON:
		title := p.Title
		if strings.TrimSpace(title) == "" {
			title = "Untitled production"
		}
		doc := ExportDocument{
			Title:         title,
			Scenes:        p.Clone().Scenes,
			TotalDuration: p.TotalDuration(),
			ExportedAt:    now.UTC(),
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(doc)
	case ExportCSV:
		cw := csv.NewWriter(w)
		if err := cw.Write(csvHeader); err != nil {
			return err
		}
		for _, scene := range p.Scenes {
			row := []string{
				strconv.Itoa(scene.Number),
				strconv.Itoa(scene.Duration),
				scene.Description,
				scene.VisualPrompt,
				BuildMotionPrompt(scene),
				scene.CameraMovement,
				scene.Mood,
				scene.Dialogue,
				string(scene.Status),
				scene.GeneratedImageURL,
				scene.GeneratedVideoURL,
				scene.Error,
			}
			if err := cw.Write(row); err != nil {
				return err
			}
		}
		if err := cw.Write([]string{"total", strconv.Itoa(p.TotalDuration())}); err != nil {
			return err
		}
		cw.Flush()
		return cw.Error()
	default:
		return fmt.Errorf("unsupported export format %q", format)
	}
}

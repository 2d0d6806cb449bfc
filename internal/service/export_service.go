package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-pdf/fpdf"
	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/classroom-api/internal/dto"
	"github.com/noah-isme/classroom-api/internal/observability"
	"github.com/noah-isme/classroom-api/internal/roster"
)

// Export formats.
const (
	ExportCSV  = "csv"
	ExportPDF  = "pdf"
	ExportXLSX = "xlsx"
)

const exportSheet = "Students"

// ErrUnsupportedExport indicates an unknown export format.
var ErrUnsupportedExport = errors.New("unsupported export format")

// ExportFile is a rendered roster export.
type ExportFile struct {
	Filename    string
	ContentType string
	Body        []byte
}

// ExportService renders the visible roster as a downloadable file.
type ExportService interface {
	Export(ctx context.Context, session roster.Session, query dto.RosterQuery, format string) (ExportFile, error)
}

type exportService struct {
	loader *RosterLoader
	title  string
	logger zerolog.Logger
	tracer trace.Tracer
	now    func() time.Time
}

// NewExportService constructs the export service. Title heads PDF exports.
func NewExportService(loader *RosterLoader, title string, logger zerolog.Logger) ExportService {
	if strings.TrimSpace(title) == "" {
		title = "Student Roster"
	}
	return &exportService{
		loader: loader,
		title:  title,
		logger: logger.With().Str("component", "export_service").Logger(),
		tracer: otel.Tracer("github.com/noah-isme/classroom-api/internal/service/export"),
		now:    time.Now,
	}
}

func (s *exportService) Export(ctx context.Context, session roster.Session, query dto.RosterQuery, format string) (ExportFile, error) {
	format = strings.ToLower(strings.TrimSpace(format))
	ctx, span := s.tracer.Start(ctx, "roster.export", trace.WithAttributes(
		attribute.String("export.format", format),
	))
	defer span.End()

	visible, _, _, err := s.loader.Visible(ctx, session, query.Filter())
	if err != nil {
		span.RecordError(err)
		return ExportFile{}, err
	}
	rows := roster.BuildRows(roster.SortByName(visible))
	span.SetAttributes(attribute.Int("export.rows", len(rows)))

	now := s.now()
	var file ExportFile
	switch format {
	case ExportCSV:
		file, err = renderCSV(rows)
	case ExportPDF:
		file, err = renderPDF(rows, s.title, subtitle(query), now)
	case ExportXLSX:
		file, err = renderXLSX(rows)
	default:
		return ExportFile{}, ErrUnsupportedExport
	}
	if err != nil {
		span.RecordError(err)
		s.logger.Error().Err(err).Str("format", format).Msg("failed to render export")
		return ExportFile{}, err
	}

	file.Filename = exportFilename(query.Section, now, format)
	observability.Exports().WithLabelValues(format).Inc()
	return file, nil
}

func renderCSV(rows []roster.Row) (ExportFile, error) {
	var buf bytes.Buffer
	if err := roster.WriteCSV(&buf, rows); err != nil {
		return ExportFile{}, err
	}
	return ExportFile{ContentType: "text/csv; charset=utf-8", Body: buf.Bytes()}, nil
}

func renderPDF(rows []roster.Row, title, sub string, now time.Time) (ExportFile, error) {
	pdf := fpdf.New("P", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetTitle(title, true)
	pdf.SetCreationDate(now)
	pdf.AliasNbPages("")

	widths := []float64{35, 95, 50}
	tableHeader := func() {
		pdf.SetFont("Helvetica", "B", 10)
		pdf.SetFillColor(230, 230, 230)
		for i, header := range roster.Header() {
			pdf.CellFormat(widths[i], 8, header, "1", 0, "L", true, 0, "")
		}
		pdf.Ln(-1)
		pdf.SetFont("Helvetica", "", 10)
	}

	pdf.SetHeaderFunc(func() {
		pdf.SetFont("Helvetica", "B", 14)
		pdf.CellFormat(0, 9, tr(title), "", 1, "C", false, 0, "")
		pdf.SetFont("Helvetica", "", 9)
		pdf.CellFormat(0, 6, tr(sub+" - generated "+now.UTC().Format("2006-01-02 15:04 MST")), "", 1, "C", false, 0, "")
		pdf.Ln(3)
		tableHeader()
	})
	pdf.SetFooterFunc(func() {
		pdf.SetY(-15)
		pdf.SetFont("Helvetica", "I", 8)
		pdf.CellFormat(0, 10, fmt.Sprintf("Page %d of {nb}", pdf.PageNo()), "", 0, "C", false, 0, "")
	})

	pdf.AddPage()
	for _, row := range rows {
		for i, value := range row.Values() {
			pdf.CellFormat(widths[i], 7, tr(value), "1", 0, "L", false, 0, "")
		}
		pdf.Ln(-1)
	}
	if len(rows) == 0 {
		pdf.CellFormat(0, 8, "No students match the current filter.", "", 1, "C", false, 0, "")
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return ExportFile{}, err
	}
	return ExportFile{ContentType: "application/pdf", Body: buf.Bytes()}, nil
}

func renderXLSX(rows []roster.Row) (ExportFile, error) {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName("Sheet1", exportSheet); err != nil {
		return ExportFile{}, err
	}

	header := make([]interface{}, 0, 3)
	for _, value := range roster.Header() {
		header = append(header, value)
	}
	if err := f.SetSheetRow(exportSheet, "A1", &header); err != nil {
		return ExportFile{}, err
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return ExportFile{}, err
	}
	if err := f.SetCellStyle(exportSheet, "A1", "C1", bold); err != nil {
		return ExportFile{}, err
	}

	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return ExportFile{}, err
		}
		values := []interface{}{row.ID, row.Name, row.Section}
		if err := f.SetSheetRow(exportSheet, cell, &values); err != nil {
			return ExportFile{}, err
		}
	}

	for col, width := range map[string]float64{"A": 14, "B": 32, "C": 20} {
		if err := f.SetColWidth(exportSheet, col, col, width); err != nil {
			return ExportFile{}, err
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return ExportFile{}, err
	}
	return ExportFile{
		ContentType: "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
		Body:        buf.Bytes(),
	}, nil
}

func subtitle(query dto.RosterQuery) string {
	section := strings.TrimSpace(query.Section)
	switch section {
	case "", roster.SectionAll:
		return "All sections"
	case roster.SectionUnassigned:
		return "Unassigned students"
	default:
		return "Section " + section
	}
}

func exportFilename(section string, now time.Time, format string) string {
	slug := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			return r
		case r >= 'A' && r <= 'Z':
			return r + ('a' - 'A')
		default:
			return '-'
		}
	}, strings.TrimSpace(section))
	slug = strings.Trim(slug, "-")
	if slug == "" {
		slug = roster.SectionAll
	}
	return fmt.Sprintf("students-%s-%s.%s", slug, now.UTC().Format("20060102"), format)
}

package tools

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/millwright-ai/millwright/internal/plant"
)

// Builtins returns every tool the assistant can use, backed by the plant
// database. The registry checks this set against tools.enabled at startup.
func Builtins(store *plant.Store) []Tool {
	return []Tool{
		AnalyzeSensorTrendTool{Store: store},
		GetAllEquipmentTool{Store: store},
		GetEquipmentDetailsTool{Store: store},
		GetSensorReadingsTool{Store: store},
		SearchDocumentsTool{Store: store},
	}
}

type GetAllEquipmentTool struct {
	Store *plant.Store
}

func (t GetAllEquipmentTool) Name() string {
	return "get_all_equipment"
}

func (t GetAllEquipmentTool) Description() string {
	return "List plant equipment, optionally filtered by free-text search, area, or status"
}

func (t GetAllEquipmentTool) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"search": map[string]any{
				"type":        "string",
				"description": "Match against equipment id, name, or kind (e.g. \"pump\")",
			},
			"area": map[string]any{
				"type":        "string",
				"description": "Plant area, e.g. \"Boiler House\"",
			},
			"status": map[string]any{
				"type":        "string",
				"description": "One of running, standby, maintenance, down",
			},
		},
	}
}

func (t GetAllEquipmentTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	search, err := optionalStringArg(args, "search", "")
	if err != nil {
		return "", err
	}
	area, err := optionalStringArg(args, "area", "")
	if err != nil {
		return "", err
	}
	status, err := optionalStringArg(args, "status", "")
	if err != nil {
		return "", err
	}

	equipment, err := t.Store.SearchEquipment(ctx, search, area, status)
	if err != nil {
		return "", err
	}
	if len(equipment) == 0 {
		return "No equipment matched.", nil
	}

	lines := make([]string, 0, len(equipment)+1)
	lines = append(lines, fmt.Sprintf("%d equipment:", len(equipment)))
	for _, eq := range equipment {
		lines = append(lines, formatEquipmentLine(eq))
	}
	return strings.Join(lines, "\n"), nil
}

type GetEquipmentDetailsTool struct {
	Store *plant.Store
}

func (t GetEquipmentDetailsTool) Name() string {
	return "get_equipment_details"
}

func (t GetEquipmentDetailsTool) Description() string {
	return "Show one piece of equipment with its open work orders and latest sensor readings"
}

func (t GetEquipmentDetailsTool) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"equipment_id": map[string]any{
				"type":        "string",
				"description": "Equipment id such as EQ-1001",
			},
		},
		"required": []string{"equipment_id"},
	}
}

func (t GetEquipmentDetailsTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	id, err := stringArg(args, "equipment_id")
	if err != nil {
		return "", err
	}

	details, err := t.Store.EquipmentDetails(ctx, id)
	if errors.Is(err, plant.ErrNotFound) {
		return "", fmt.Errorf("equipment %q not found; use get_all_equipment to list valid ids", id)
	}
	if err != nil {
		return "", err
	}

	var b strings.Builder
	eq := details.Equipment
	fmt.Fprintf(&b, "%s\n", formatEquipmentLine(eq))
	if !eq.InstalledAt.IsZero() {
		fmt.Fprintf(&b, "installed: %s\n", eq.InstalledAt.Format("2006-01-02"))
	}

	if len(details.OpenWorkOrders) == 0 {
		b.WriteString("open work orders: none\n")
	} else {
		fmt.Fprintf(&b, "open work orders (%d):\n", len(details.OpenWorkOrders))
		for _, wo := range details.OpenWorkOrders {
			fmt.Fprintf(&b, "  %s [%s/%s] %s: %s\n", wo.ID, wo.Status, wo.Priority, wo.Title, wo.Summary)
		}
	}

	if len(details.LatestReadings) == 0 {
		b.WriteString("latest readings: none")
	} else {
		fmt.Fprintf(&b, "latest readings (%d):\n", len(details.LatestReadings))
		for _, r := range details.LatestReadings {
			fmt.Fprintf(&b, "  %s = %g %s at %s\n", r.Metric, r.Value, r.Unit, r.RecordedAt.Format(time.RFC3339))
		}
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

type GetSensorReadingsTool struct {
	Store *plant.Store
}

func (t GetSensorReadingsTool) Name() string {
	return "get_sensor_readings"
}

func (t GetSensorReadingsTool) Description() string {
	return "List raw sensor readings for one piece of equipment, oldest first"
}

func (t GetSensorReadingsTool) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"equipment_id": map[string]any{
				"type":        "string",
				"description": "Equipment id such as EQ-1001",
			},
			"metric": map[string]any{
				"type":        "string",
				"description": "Restrict to one metric, e.g. vibration or temperature",
			},
			"since": map[string]any{
				"type":        "string",
				"description": "Only readings at or after this RFC3339 timestamp",
			},
			"limit": map[string]any{
				"type":        "number",
				"description": "Maximum readings to return (default 100)",
			},
		},
		"required": []string{"equipment_id"},
	}
}

func (t GetSensorReadingsTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	id, err := stringArg(args, "equipment_id")
	if err != nil {
		return "", err
	}
	metric, err := optionalStringArg(args, "metric", "")
	if err != nil {
		return "", err
	}
	since, err := optionalRFC3339Arg(args, "since", time.Time{})
	if err != nil {
		return "", err
	}
	limit, err := optionalIntArg(args, "limit", 0)
	if err != nil {
		return "", err
	}

	readings, err := t.Store.SensorReadings(ctx, id, metric, since, limit)
	if err != nil {
		return "", err
	}
	if len(readings) == 0 {
		return fmt.Sprintf("No readings for %s.", id), nil
	}

	lines := make([]string, 0, len(readings)+1)
	lines = append(lines, fmt.Sprintf("%d readings for %s:", len(readings), id))
	for _, r := range readings {
		lines = append(lines, fmt.Sprintf("%s %s=%g %s", r.RecordedAt.Format(time.RFC3339), r.Metric, r.Value, r.Unit))
	}
	return strings.Join(lines, "\n"), nil
}

type AnalyzeSensorTrendTool struct {
	Store *plant.Store
}

func (t AnalyzeSensorTrendTool) Name() string {
	return "analyze_sensor_trend"
}

func (t AnalyzeSensorTrendTool) Description() string {
	return "Summarize how one sensor metric moved over a time window: min, max, mean, and trend direction"
}

func (t AnalyzeSensorTrendTool) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"equipment_id": map[string]any{
				"type":        "string",
				"description": "Equipment id such as EQ-1001",
			},
			"metric": map[string]any{
				"type":        "string",
				"description": "Metric to analyze, e.g. vibration",
			},
			"window": map[string]any{
				"type":        "string",
				"description": "Look-back window as a Go duration, e.g. \"24h\" (default)",
			},
		},
		"required": []string{"equipment_id", "metric"},
	}
}

func (t AnalyzeSensorTrendTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	id, err := stringArg(args, "equipment_id")
	if err != nil {
		return "", err
	}
	metric, err := stringArg(args, "metric")
	if err != nil {
		return "", err
	}
	window, err := optionalDurationArg(args, "window", 24*time.Hour)
	if err != nil {
		return "", err
	}

	readings, err := t.Store.SensorReadings(ctx, id, metric, time.Now().Add(-window), 0)
	if err != nil {
		return "", err
	}
	if len(readings) == 0 {
		return "", fmt.Errorf("no %s readings for %s in the last %s", metric, id, window)
	}

	first := readings[0]
	last := readings[len(readings)-1]
	min, max, sum := first.Value, first.Value, 0.0
	for _, r := range readings {
		if r.Value < min {
			min = r.Value
		}
		if r.Value > max {
			max = r.Value
		}
		sum += r.Value
	}
	mean := sum / float64(len(readings))

	var b strings.Builder
	fmt.Fprintf(&b, "%s %s over %s: %d readings\n", id, metric, window, len(readings))
	fmt.Fprintf(&b, "first %g %s at %s, last %g %s at %s\n",
		first.Value, first.Unit, first.RecordedAt.Format(time.RFC3339),
		last.Value, last.Unit, last.RecordedAt.Format(time.RFC3339))
	fmt.Fprintf(&b, "min %g, max %g, mean %.3g %s\n", min, max, mean, first.Unit)
	fmt.Fprintf(&b, "trend: %s", classifyTrend(first.Value, last.Value, len(readings)))
	return b.String(), nil
}

// classifyTrend compares first and last values; moves under 5 percent count
// as stable.
func classifyTrend(first, last float64, samples int) string {
	if samples < 2 {
		return "unknown (single reading)"
	}
	base := first
	if base < 0 {
		base = -base
	}
	if base == 0 {
		base = 1
	}
	change := (last - first) / base
	switch {
	case change > 0.05:
		return fmt.Sprintf("rising (%+.1f%%)", change*100)
	case change < -0.05:
		return fmt.Sprintf("falling (%+.1f%%)", change*100)
	default:
		return fmt.Sprintf("stable (%+.1f%%)", change*100)
	}
}

type SearchDocumentsTool struct {
	Store *plant.Store
}

func (t SearchDocumentsTool) Name() string {
	return "search_documents"
}

func (t SearchDocumentsTool) Description() string {
	return "Search ingested maintenance documents (manuals, procedures, incident reports) by text"
}

func (t SearchDocumentsTool) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"query": map[string]any{
				"type":        "string",
				"description": "Text to match against document titles and content",
			},
			"doc_type": map[string]any{
				"type":        "string",
				"description": "Restrict to one type: manual, procedure, incident_report, datasheet",
			},
			"limit": map[string]any{
				"type":        "number",
				"description": "Maximum sections to return (default 10)",
			},
		},
		"required": []string{"query"},
	}
}

func (t SearchDocumentsTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	query, err := stringArg(args, "query")
	if err != nil {
		return "", err
	}
	docType, err := optionalStringArg(args, "doc_type", "")
	if err != nil {
		return "", err
	}
	limit, err := optionalIntArg(args, "limit", 0)
	if err != nil {
		return "", err
	}

	docs, err := t.Store.SearchDocuments(ctx, query, docType, limit)
	if err != nil {
		return "", err
	}
	if len(docs) == 0 {
		return fmt.Sprintf("No documents matched %q.", query), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%d document sections:\n", len(docs))
	for i, doc := range docs {
		heading := doc.Title
		if doc.Section != "" {
			heading += " / " + doc.Section
		}
		fmt.Fprintf(&b, "[%d] %s (%s", i+1, heading, doc.DocType)
		if doc.EquipmentID != "" {
			fmt.Fprintf(&b, ", %s", doc.EquipmentID)
		}
		fmt.Fprintf(&b, ")\n%s\n", doc.Content)
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

func formatEquipmentLine(eq plant.Equipment) string {
	return fmt.Sprintf("%s | %s | kind=%s area=%s status=%s | %s %s",
		eq.ID, eq.Name, eq.Kind, eq.Area, eq.Status, eq.Manufacturer, eq.Model)
}

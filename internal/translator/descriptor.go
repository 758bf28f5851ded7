package translator

import (
	"encoding/json"
	"strings"

	"github.com/kaptinlin/jsonrepair"
)

// Descriptor is the structured reply the model is asked to produce.
type Descriptor struct {
	ResponseText string     `json:"response_text"`
	Query        *QuerySpec `json:"query"`
	ChartConfig  *ChartSpec `json:"chart_config"`
}

// QuerySpec is a single-table fetch as proposed by the model. Loosely typed
// fields are normalized during validation.
type QuerySpec struct {
	Table          string       `json:"table"`
	Select         any          `json:"select"`
	Filters        []FilterSpec `json:"filters"`
	OrderBy        string       `json:"order_by"`
	OrderDirection string       `json:"order_direction"`
	Limit          any          `json:"limit"`
}

type FilterSpec struct {
	Column   string `json:"column"`
	Operator string `json:"operator"`
	Value    any    `json:"value"`
}

type ChartSpec struct {
	Type string `json:"type"`
	X    string `json:"x"`
	Y    string `json:"y"`
}

// Decoded is either Structured or PlainText.
type Decoded interface {
	decoded()
}

type Structured struct {
	Descriptor Descriptor
	// Repaired is set when the payload only parsed after repair.
	Repaired bool
}

type PlainText struct {
	Text string
}

func (Structured) decoded() {}
func (PlainText) decoded()  {}

// Decode parses a model reply. A reply that is itself a JSON object, or
// carries one in a fenced block, is parsed with a repair pass. An object
// embedded in prose must parse strictly. Anything else is returned verbatim
// as PlainText.
func Decode(raw string) Decoded {
	if body := stripFences(raw); strings.HasPrefix(body, "{") {
		if out, ok := parseObject(body, true); ok {
			return out
		}
		return PlainText{Text: strings.TrimSpace(raw)}
	}
	if block, ok := fencedBlock(raw); ok && strings.HasPrefix(block, "{") {
		if out, ok := parseObject(block, true); ok {
			return out
		}
	}
	if start, end := strings.Index(raw, "{"), strings.LastIndex(raw, "}"); start >= 0 && end > start {
		if out, ok := parseObject(raw[start:end+1], false); ok {
			desc := out.(Structured).Descriptor
			if strings.TrimSpace(desc.ResponseText) != "" || desc.Query != nil {
				return out
			}
		}
	}
	return PlainText{Text: strings.TrimSpace(raw)}
}

func parseObject(body string, repair bool) (Decoded, bool) {
	var desc Descriptor
	if err := json.Unmarshal([]byte(body), &desc); err == nil {
		return Structured{Descriptor: desc}, true
	}
	if !repair {
		return nil, false
	}
	repaired, err := jsonrepair.JSONRepair(body)
	if err != nil {
		return nil, false
	}
	desc = Descriptor{}
	if err := json.Unmarshal([]byte(repaired), &desc); err != nil {
		return nil, false
	}
	return Structured{Descriptor: desc, Repaired: true}, true
}

func stripFences(raw string) string {
	body := strings.TrimSpace(raw)
	body = strings.TrimPrefix(body, "```json")
	body = strings.TrimPrefix(body, "```JSON")
	body = strings.TrimPrefix(body, "```")
	body = strings.TrimSuffix(body, "```")
	return strings.TrimSpace(body)
}

// fencedBlock returns the body of the first ``` block in raw.
func fencedBlock(raw string) (string, bool) {
	start := strings.Index(raw, "```")
	if start < 0 {
		return "", false
	}
	rest := raw[start+3:]
	end := strings.Index(rest, "```")
	if end < 0 {
		return "", false
	}
	body := rest[:end]
	if lang := strings.ToLower(body); strings.HasPrefix(lang, "json") {
		body = body[len("json"):]
	}
	return strings.TrimSpace(body), true
}

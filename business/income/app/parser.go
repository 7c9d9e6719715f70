package app

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/shopspring/decimal"

	"github.com/fd1az/starfire-income/business/income/domain"
	"github.com/fd1az/starfire-income/internal/apperror"
)

// ResultKind classifies a parsed payload.
type ResultKind string

const (
	// ResultIncome carries an IncomeEvent for the ledger.
	ResultIncome ResultKind = "income"
	// ResultMessage is valid JSON that is not an income event.
	ResultMessage ResultKind = "message"
	// ResultLogLine is text that matched no earnings pattern.
	ResultLogLine ResultKind = "log"
)

// ParseResult is the outcome of parsing one frame.
type ParseResult struct {
	Kind  ResultKind
	Event *domain.IncomeEvent
	Text  string
	// Defaulted lists fields that were present but unusable and were
	// replaced by their defaults.
	Defaulted []string
}

// Digits and spaces are matched across Unicode; amounts are folded to ASCII
// digits before decimal parsing.
var incomePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)收益[:\s\p{Zs}]*([\p{Nd}.]+)[\s\p{Zs}]*([¥$元])`),
	regexp.MustCompile(`(?i)获得[:\s\p{Zs}]*([\p{Nd}.]+)[\s\p{Zs}]*([¥$元])`),
	regexp.MustCompile(`(?i)赚取[:\s\p{Zs}]*([\p{Nd}.]+)[\s\p{Zs}]*([¥$元])`),
	regexp.MustCompile(`(?i)income[:\s\p{Zs}]*([\p{Nd}.]+)[\s\p{Zs}]*(CNY|USD|¥|\$)`),
	regexp.MustCompile(`(?i)earned[:\s\p{Zs}]*([\p{Nd}.]+)[\s\p{Zs}]*(CNY|USD|¥|\$)`),
	regexp.MustCompile(`(?i)profit[:\s\p{Zs}]*([\p{Nd}.]+)[\s\p{Zs}]*(CNY|USD|¥|\$)`),
}

// Parser turns frame payloads into income events. It is stateless and safe
// for concurrent use.
type Parser struct {
	patterns []*regexp.Regexp
}

// NewParser returns a Parser with the built-in earnings vocabulary.
func NewParser() *Parser {
	return &Parser{patterns: incomePatterns}
}

// Parse classifies payload. Only invalid UTF-8 is an error; every other
// shape degrades to a message or log line.
func (p *Parser) Parse(payload []byte) (ParseResult, error) {
	if !utf8.Valid(payload) {
		return ParseResult{}, apperror.New(apperror.CodeDecodeError,
			apperror.WithContext(fmt.Sprintf("%d bytes", len(payload))))
	}
	text := string(payload)

	if raw, ok := decodeJSON(payload); ok {
		return p.parseJSON(raw, text), nil
	}

	if ev, ok := p.parseFreeText(text); ok {
		return ParseResult{Kind: ResultIncome, Event: &ev, Text: text}, nil
	}
	return ParseResult{Kind: ResultLogLine, Text: text}, nil
}

func decodeJSON(payload []byte) (any, bool) {
	if !json.Valid(payload) {
		return nil, false
	}
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, false
	}
	return v, true
}

func (p *Parser) parseJSON(raw any, text string) ParseResult {
	obj, ok := raw.(map[string]any)
	if !ok {
		return ParseResult{Kind: ResultMessage, Text: text}
	}

	if _, ok := obj["total_income"]; ok {
		return parseStructured(obj, text)
	}
	if t, _ := obj["type"].(string); t == "income" {
		return parseLegacy(obj, text)
	}
	return ParseResult{Kind: ResultMessage, Text: text}
}

func parseStructured(obj map[string]any, text string) ParseResult {
	var defaulted []string

	amount, ok := decimalField(obj, "amount")
	if !ok {
		defaulted = append(defaulted, "amount")
	}
	total, ok := decimalField(obj, "total_income")
	if !ok {
		defaulted = append(defaulted, "total_income")
	}
	cur, ok := stringField(obj, "currency")
	if !ok {
		defaulted = append(defaulted, "currency")
	}

	ev := domain.NewIncomeEvent(domain.SourceStructured, amount, cur).WithTotal(total)

	if model, ok := stringField(obj, "model"); ok {
		ev.Model = model
	} else {
		defaulted = append(defaulted, "model")
	}

	if u, present := obj["usage"]; present && u != nil {
		usage, ok := parseUsage(u)
		if ok {
			ev.Usage = usage
		} else {
			defaulted = append(defaulted, "usage")
		}
	}

	return ParseResult{Kind: ResultIncome, Event: &ev, Text: text, Defaulted: defaulted}
}

func parseLegacy(obj map[string]any, text string) ParseResult {
	var defaulted []string

	amount, ok := decimalField(obj, "amount")
	if !ok {
		defaulted = append(defaulted, "amount")
	}
	cur, ok := stringField(obj, "currency")
	if !ok {
		defaulted = append(defaulted, "currency")
	}

	ev := domain.NewIncomeEvent(domain.SourceLegacy, amount, cur)
	if msg, ok := stringField(obj, "message"); ok {
		ev.Message = msg
	} else {
		defaulted = append(defaulted, "message")
	}

	return ParseResult{Kind: ResultIncome, Event: &ev, Text: text, Defaulted: defaulted}
}

func (p *Parser) parseFreeText(text string) (domain.IncomeEvent, bool) {
	for _, re := range p.patterns {
		m := re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		amount, err := decimal.NewFromString(asciiDigits(m[1]))
		if err != nil {
			// The amount class also matches things like "." or "1.2.3".
			continue
		}
		ev := domain.NewIncomeEvent(domain.SourceFreeText, amount, m[2])
		ev.Message = text
		return ev, true
	}
	return domain.IncomeEvent{}, false
}

// asciiDigits rewrites every Unicode decimal digit in s as its ASCII form.
// Decimal digits come in contiguous 0-9 runs, so a digit's value is its
// offset from the start of its run.
func asciiDigits(s string) string {
	return strings.Map(func(r rune) rune {
		if r < utf8.RuneSelf || !unicode.IsDigit(r) {
			return r
		}
		start := r
		for unicode.IsDigit(start - 1) {
			start--
		}
		return '0' + (r-start)%10
	}, s)
}

// decimalField reads key as a decimal from a JSON number or numeric string.
// An absent or null key yields zero and ok; a present unusable value yields
// zero and !ok.
func decimalField(obj map[string]any, key string) (decimal.Decimal, bool) {
	v, present := obj[key]
	if !present || v == nil {
		return decimal.Zero, true
	}
	d, err := toDecimal(v)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

func toDecimal(v any) (decimal.Decimal, error) {
	switch t := v.(type) {
	case json.Number:
		return decimal.NewFromString(t.String())
	case string:
		return decimal.NewFromString(strings.TrimSpace(t))
	case float64:
		return decimal.NewFromFloat(t), nil
	default:
		return decimal.Zero, fmt.Errorf("not a number: %T", v)
	}
}

// stringField reads key as a string. Absent or null yields "" and ok.
func stringField(obj map[string]any, key string) (string, bool) {
	v, present := obj[key]
	if !present || v == nil {
		return "", true
	}
	s, ok := v.(string)
	return s, ok
}

func parseUsage(v any) (*domain.Usage, bool) {
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, false
	}
	var u domain.Usage
	for key, dst := range map[string]*int64{
		"prompt_tokens":     &u.PromptTokens,
		"completion_tokens": &u.CompletionTokens,
		"total_tokens":      &u.TotalTokens,
	} {
		n, ok := toInt(obj[key])
		if !ok {
			return nil, false
		}
		*dst = n
	}
	return &u, true
}

func toInt(v any) (int64, bool) {
	switch t := v.(type) {
	case nil:
		return 0, true
	case json.Number:
		if n, err := t.Int64(); err == nil {
			return n, true
		}
		f, err := t.Float64()
		return int64(f), err == nil
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(t), 10, 64)
		return n, err == nil
	default:
		return 0, false
	}
}

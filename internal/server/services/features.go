package services

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/dmitrijs2005/subkeeper/internal/server/models"
)

// Feature names the evaluator knows about.
const (
	FeatureMaxCompanions     = "max_companions"
	FeatureVoiceType         = "voice_type"
	FeatureStyleOptions      = "style_options"
	FeatureMaxSessionMinutes = "max_session_minutes"
)

// Values used when a plan does not define the feature.
const (
	DefaultMaxCompanions     int64 = 1
	DefaultVoiceType               = "female"
	DefaultMaxSessionMinutes int64 = 15
)

type ValueKind int

const (
	ValueBoolean ValueKind = iota + 1
	ValueNumber
	ValueString
)

// FeatureValue is a plan feature value decoded once according to the
// feature's declared type.
type FeatureValue struct {
	Kind   ValueKind
	Bool   bool
	Number int64
	Text   string
}

// ParseFeatureValue decodes raw as typ.
func ParseFeatureValue(typ models.FeatureType, raw string) (FeatureValue, error) {
	raw = strings.TrimSpace(raw)
	switch typ {
	case models.FeatureBoolean:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return FeatureValue{}, fmt.Errorf("boolean value %q: %w", raw, err)
		}
		return FeatureValue{Kind: ValueBoolean, Bool: b}, nil
	case models.FeatureNumber:
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return FeatureValue{}, fmt.Errorf("number value %q: %w", raw, err)
		}
		return FeatureValue{Kind: ValueNumber, Number: n}, nil
	case models.FeatureString:
		return FeatureValue{Kind: ValueString, Text: raw}, nil
	default:
		return FeatureValue{}, fmt.Errorf("unknown feature type %q", typ)
	}
}

// List splits a string value on commas, dropping blanks.
func (v FeatureValue) List() []string {
	if v.Kind != ValueString {
		return nil
	}
	var out []string
	for _, s := range strings.Split(v.Text, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// FeatureSet maps feature name to its decoded value for one plan.
type FeatureSet map[string]FeatureValue

// NewFeatureSet decodes rows. Rows that fail to decode are left out, so the
// accessors fall back to their defaults; the decode errors are returned
// joined for logging.
func NewFeatureSet(rows []models.SubscriptionFeature) (FeatureSet, error) {
	fs := make(FeatureSet, len(rows))
	var errs []error
	for _, r := range rows {
		v, err := ParseFeatureValue(r.Type, r.Value)
		if err != nil {
			errs = append(errs, fmt.Errorf("feature %s: %w", r.Name, err))
			continue
		}
		fs[r.Name] = v
	}
	return fs, errors.Join(errs...)
}

func (fs FeatureSet) lookup(name string, kind ValueKind) (FeatureValue, bool) {
	v, ok := fs[name]
	if !ok || v.Kind != kind {
		return FeatureValue{}, false
	}
	return v, true
}

// Number returns a numeric feature or def when it is absent.
func (fs FeatureSet) Number(name string, def int64) int64 {
	if v, ok := fs.lookup(name, ValueNumber); ok {
		return v.Number
	}
	return def
}

// Bool returns a boolean feature or def when it is absent.
func (fs FeatureSet) Bool(name string, def bool) bool {
	if v, ok := fs.lookup(name, ValueBoolean); ok {
		return v.Bool
	}
	return def
}

// List returns a comma separated string feature and whether it is set.
func (fs FeatureSet) List(name string) ([]string, bool) {
	v, ok := fs.lookup(name, ValueString)
	if !ok {
		return nil, false
	}
	return v.List(), true
}

func (fs FeatureSet) MaxCompanions() int64 {
	return fs.Number(FeatureMaxCompanions, DefaultMaxCompanions)
}

func (fs FeatureSet) VoiceTypes() []string {
	if voices, ok := fs.List(FeatureVoiceType); ok {
		return voices
	}
	return []string{DefaultVoiceType}
}

// StyleOptions has no default: ok is false when the plan offers no styles.
func (fs FeatureSet) StyleOptions() (styles []string, ok bool) {
	return fs.List(FeatureStyleOptions)
}

func (fs FeatureSet) MaxSessionMinutes() int64 {
	return fs.Number(FeatureMaxSessionMinutes, DefaultMaxSessionMinutes)
}

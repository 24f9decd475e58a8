package classify

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// ConstraintType identifies the kind of integrity constraint that failed.
type ConstraintType string

// Constraint types
const (
	ConstraintUnique     ConstraintType = "unique"
	ConstraintForeignKey ConstraintType = "foreign_key"
	ConstraintCheck      ConstraintType = "check"
	ConstraintNotNull    ConstraintType = "not_null"
	ConstraintPrimaryKey ConstraintType = "primary_key"
	ConstraintUnknown    ConstraintType = "unknown"
)

// ConstraintViolationInfo carries the structured detail extracted from a
// persistence-layer integrity error. Extraction is best-effort: fields the
// message does not contain are left empty, never errored on.
type ConstraintViolationInfo struct {
	Type                ConstraintType `json:"type"`
	ConstraintName      string         `json:"constraint_name,omitempty"`
	Table               string         `json:"table,omitempty"`
	Column              string         `json:"column,omitempty"`
	ConflictingValue    string         `json:"conflicting_value,omitempty"`
	SuggestedResolution string         `json:"suggested_resolution"`
	RecoveryStrategy    string         `json:"recovery_strategy"`
	IsRecoverable       bool           `json:"is_recoverable"`
}

// constraintGroup ties message substrings to a constraint type and its
// fixed recovery guidance.
type constraintGroup struct {
	substrs    []string
	typ        ConstraintType
	resolution string
	strategy   string
}

var (
	constraintNameRe = regexp.MustCompile(`constraint "([^"]+)"`)
	tableRe          = regexp.MustCompile(`(?:table|relation) "([^"]+)"`)
	columnRe         = regexp.MustCompile(`column "([^"]+)"`)
	valueRe          = regexp.MustCompile(`value "([^"]+)"`)
	keyDetailRe      = regexp.MustCompile(`[Kk]ey \(([^)]+)\)=\(([^)]+)\)`)
)

// ConstraintAnalyzer extracts structured detail from integrity errors that
// the classifier put in the constraint-violation category.
type ConstraintAnalyzer struct {
	classifier *Classifier
	groups     []constraintGroup
}

// NewConstraintAnalyzer builds the analyzer with its pattern groups ordered
// longest-substring-first for deterministic matching.
func NewConstraintAnalyzer(classifier *Classifier) *ConstraintAnalyzer {
	groups := []constraintGroup{
		{
			substrs:    []string{"unique constraint", "duplicate key"},
			typ:        ConstraintUnique,
			resolution: "a record with this value already exists; update the existing record or use a different value",
			strategy:   "deduplicate before insert, or switch to an upsert",
		},
		{
			substrs:    []string{"foreign key constraint", "violates foreign key"},
			typ:        ConstraintForeignKey,
			resolution: "the referenced record does not exist; create it first or fix the reference",
			strategy:   "insert parent rows before child rows",
		},
		{
			substrs:    []string{"check constraint"},
			typ:        ConstraintCheck,
			resolution: "a value is outside the range the schema allows; fix the value",
			strategy:   "validate inputs against schema bounds before writing",
		},
		{
			substrs:    []string{"not null constraint", "violates not-null", "null value in column"},
			typ:        ConstraintNotNull,
			resolution: "a required field is missing; supply it",
			strategy:   "validate required fields before writing",
		},
		{
			substrs:    []string{"primary key constraint"},
			typ:        ConstraintPrimaryKey,
			resolution: "a record with this key already exists; use a new key or update the existing record",
			strategy:   "generate keys server-side, or switch to an upsert",
		},
	}
	// Longest substring first within each group
	for i := range groups {
		sort.SliceStable(groups[i].substrs, func(a, b int) bool {
			return len(groups[i].substrs[a]) > len(groups[i].substrs[b])
		})
	}
	return &ConstraintAnalyzer{classifier: classifier, groups: groups}
}

// Analyze returns structured constraint detail for the error, or nil when
// the error is not a constraint violation.
func (a *ConstraintAnalyzer) Analyze(err error) *ConstraintViolationInfo {
	if err == nil {
		return nil
	}
	if a.classifier.Classify(err).Category != CategoryConstraintViolation {
		return nil
	}

	message := err.Error()
	lower := strings.ToLower(message)

	for _, g := range a.groups {
		for _, s := range g.substrs {
			if !strings.Contains(lower, s) {
				continue
			}
			info := &ConstraintViolationInfo{
				Type:                g.typ,
				SuggestedResolution: g.resolution,
				RecoveryStrategy:    g.strategy,
				IsRecoverable:       true,
			}
			a.extractDetail(message, info)
			return info
		}
	}

	// Classified as a constraint violation but no known group matched.
	return &ConstraintViolationInfo{
		Type:                ConstraintUnknown,
		SuggestedResolution: "inspect the database error manually",
		RecoveryStrategy:    "none known",
		IsRecoverable:       false,
	}
}

// extractDetail pulls constraint/table/column/value substrings out of a
// Postgres-style error message. Any extraction that fails leaves the field
// empty.
func (a *ConstraintAnalyzer) extractDetail(message string, info *ConstraintViolationInfo) {
	if m := constraintNameRe.FindStringSubmatch(message); m != nil {
		info.ConstraintName = m[1]
	}
	if m := tableRe.FindStringSubmatch(message); m != nil {
		info.Table = m[1]
	}
	if m := columnRe.FindStringSubmatch(message); m != nil {
		info.Column = m[1]
	}
	if m := valueRe.FindStringSubmatch(message); m != nil {
		info.ConflictingValue = m[1]
	}
	// Postgres detail lines look like: Key (address)=(0xabc) already exists.
	if m := keyDetailRe.FindStringSubmatch(message); m != nil {
		if info.Column == "" {
			info.Column = m[1]
		}
		if info.ConflictingValue == "" {
			info.ConflictingValue = m[2]
		}
	}
}

// UserFriendlyMessage renders a per-type template substituting whichever
// structured fields were extracted.
func (a *ConstraintAnalyzer) UserFriendlyMessage(info *ConstraintViolationInfo) string {
	if info == nil {
		return "an unexpected data error occurred"
	}

	subject := "a record"
	if info.Table != "" {
		subject = fmt.Sprintf("a record in %s", info.Table)
	}

	switch info.Type {
	case ConstraintUnique, ConstraintPrimaryKey:
		if info.Column != "" && info.ConflictingValue != "" {
			return fmt.Sprintf("%s with %s %q already exists", subject, info.Column, info.ConflictingValue)
		}
		return fmt.Sprintf("%s with this value already exists", subject)
	case ConstraintForeignKey:
		return fmt.Sprintf("%s references data that does not exist", subject)
	case ConstraintCheck:
		if info.Column != "" {
			return fmt.Sprintf("the value for %s is outside the allowed range", info.Column)
		}
		return "a value is outside the allowed range"
	case ConstraintNotNull:
		if info.Column != "" {
			return fmt.Sprintf("the required field %s is missing", info.Column)
		}
		return "a required field is missing"
	default:
		return "an unexpected data error occurred"
	}
}

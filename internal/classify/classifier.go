// Package classify maps raised failures to a category with a handling
// policy. Classification is pure and deterministic: pattern tables are
// sorted longest-first at construction so tie-breaks never depend on map
// iteration order.
package classify

import (
	"sort"
	"strings"

	"github.com/scr1ptjunk13/defi-risk-monitor-sub003/internal/apperrors"
	"github.com/scr1ptjunk13/defi-risk-monitor-sub003/internal/model"
)

// Category buckets a failure by the policy it requires.
type Category string

// Error categories
const (
	CategoryTransient           Category = "transient"
	CategoryPermanent           Category = "permanent"
	CategoryResourceExhaustion  Category = "resource_exhaustion"
	CategoryConstraintViolation Category = "constraint_violation"
	CategorySecurity            Category = "security"
	CategoryConfiguration       Category = "configuration"
	CategoryRateLimit           Category = "rate_limit"
)

// Classification is the policy derived for a failure. Callers decide
// whether to log or page based on ShouldAlert; the classifier itself
// performs no I/O.
type Classification struct {
	Category             Category       `json:"category"`
	Severity             model.Severity `json:"severity"`
	IsRetryable          bool           `json:"is_retryable"`
	IsReadOnlyCompatible bool           `json:"is_read_only_compatible"`
	SuggestedAction      string         `json:"suggested_action"`
	MetricsLabel         string         `json:"metrics_label"`
	ShouldAlert          bool           `json:"should_alert"`
}

// pattern binds a message substring to a fixed classification.
type pattern struct {
	substr string
	class  Classification
}

// Classifier holds the pattern tables for message-based classification.
// It is immutable after construction and safe for concurrent use.
type Classifier struct {
	databasePatterns   []pattern
	blockchainPatterns []pattern
	apiPatterns        []pattern
}

// NewClassifier builds the classifier with its pattern tables sorted by
// substring length descending, so the longest matching pattern wins.
func NewClassifier() *Classifier {
	c := &Classifier{
		databasePatterns: []pattern{
			{"deadlock", Classification{
				Category: CategoryTransient, Severity: model.SeverityMedium,
				IsRetryable: true, IsReadOnlyCompatible: false,
				SuggestedAction: "retry the transaction after a short delay",
				MetricsLabel:    "db_deadlock",
			}},
			{"serialization failure", Classification{
				Category: CategoryTransient, Severity: model.SeverityMedium,
				IsRetryable: true, IsReadOnlyCompatible: false,
				SuggestedAction: "retry the transaction",
				MetricsLabel:    "db_serialization",
			}},
			{"connection refused", Classification{
				Category: CategoryTransient, Severity: model.SeverityHigh,
				IsRetryable: true, IsReadOnlyCompatible: true,
				SuggestedAction: "retry with backoff, check database availability",
				MetricsLabel:    "db_connection",
			}},
			{"connection reset", Classification{
				Category: CategoryTransient, Severity: model.SeverityMedium,
				IsRetryable: true, IsReadOnlyCompatible: true,
				SuggestedAction: "retry with backoff",
				MetricsLabel:    "db_connection",
			}},
			{"connection timeout", Classification{
				Category: CategoryTransient, Severity: model.SeverityMedium,
				IsRetryable: true, IsReadOnlyCompatible: true,
				SuggestedAction: "retry with backoff",
				MetricsLabel:    "db_connection",
			}},
			{"too many connections", Classification{
				Category: CategoryResourceExhaustion, Severity: model.SeverityHigh,
				IsRetryable: true, IsReadOnlyCompatible: true,
				SuggestedAction: "retry with longer backoff, review pool sizing",
				MetricsLabel:    "db_pool_exhausted", ShouldAlert: true,
			}},
			{"connection pool exhausted", Classification{
				Category: CategoryResourceExhaustion, Severity: model.SeverityHigh,
				IsRetryable: true, IsReadOnlyCompatible: true,
				SuggestedAction: "retry with longer backoff, review pool sizing",
				MetricsLabel:    "db_pool_exhausted", ShouldAlert: true,
			}},
			{"disk full", Classification{
				Category: CategoryResourceExhaustion, Severity: model.SeverityCritical,
				IsRetryable: true, IsReadOnlyCompatible: true,
				SuggestedAction: "free disk space immediately",
				MetricsLabel:    "db_disk_full", ShouldAlert: true,
			}},
			{"statement timeout", Classification{
				Category: CategoryResourceExhaustion, Severity: model.SeverityMedium,
				IsRetryable: true, IsReadOnlyCompatible: true,
				SuggestedAction: "retry with longer backoff or simplify the query",
				MetricsLabel:    "db_timeout", ShouldAlert: true,
			}},
			{"unique constraint", Classification{
				Category: CategoryConstraintViolation, Severity: model.SeverityHigh,
				IsRetryable: false, IsReadOnlyCompatible: true,
				SuggestedAction: "fix the conflicting data, do not retry",
				MetricsLabel:    "db_constraint", ShouldAlert: true,
			}},
			{"foreign key constraint", Classification{
				Category: CategoryConstraintViolation, Severity: model.SeverityHigh,
				IsRetryable: false, IsReadOnlyCompatible: true,
				SuggestedAction: "ensure the referenced row exists, do not retry",
				MetricsLabel:    "db_constraint", ShouldAlert: true,
			}},
			{"check constraint", Classification{
				Category: CategoryConstraintViolation, Severity: model.SeverityHigh,
				IsRetryable: false, IsReadOnlyCompatible: true,
				SuggestedAction: "fix the out-of-range value, do not retry",
				MetricsLabel:    "db_constraint", ShouldAlert: true,
			}},
			{"not null constraint", Classification{
				Category: CategoryConstraintViolation, Severity: model.SeverityHigh,
				IsRetryable: false, IsReadOnlyCompatible: true,
				SuggestedAction: "supply the missing required field, do not retry",
				MetricsLabel:    "db_constraint", ShouldAlert: true,
			}},
			{"violates not-null", Classification{
				Category: CategoryConstraintViolation, Severity: model.SeverityHigh,
				IsRetryable: false, IsReadOnlyCompatible: true,
				SuggestedAction: "supply the missing required field, do not retry",
				MetricsLabel:    "db_constraint", ShouldAlert: true,
			}},
			{"duplicate key", Classification{
				Category: CategoryConstraintViolation, Severity: model.SeverityHigh,
				IsRetryable: false, IsReadOnlyCompatible: true,
				SuggestedAction: "fix the conflicting data, do not retry",
				MetricsLabel:    "db_constraint", ShouldAlert: true,
			}},
			{"primary key constraint", Classification{
				Category: CategoryConstraintViolation, Severity: model.SeverityHigh,
				IsRetryable: false, IsReadOnlyCompatible: true,
				SuggestedAction: "fix the conflicting data, do not retry",
				MetricsLabel:    "db_constraint", ShouldAlert: true,
			}},
			{"syntax error", Classification{
				Category: CategoryPermanent, Severity: model.SeverityCritical,
				IsRetryable: false, IsReadOnlyCompatible: true,
				SuggestedAction: "fix the query, this is a code defect",
				MetricsLabel:    "db_permanent", ShouldAlert: true,
			}},
			{"permission denied", Classification{
				Category: CategoryPermanent, Severity: model.SeverityCritical,
				IsRetryable: false, IsReadOnlyCompatible: true,
				SuggestedAction: "review database grants",
				MetricsLabel:    "db_permanent", ShouldAlert: true,
			}},
			{"does not exist", Classification{
				Category: CategoryPermanent, Severity: model.SeverityHigh,
				IsRetryable: false, IsReadOnlyCompatible: true,
				SuggestedAction: "check the schema, run pending migrations",
				MetricsLabel:    "db_permanent", ShouldAlert: true,
			}},
		},
		blockchainPatterns: []pattern{
			{"rate limit", Classification{
				Category: CategoryRateLimit, Severity: model.SeverityLow,
				IsRetryable: true, IsReadOnlyCompatible: true,
				SuggestedAction: "retry with exponential backoff",
				MetricsLabel:    "rpc_rate_limit",
			}},
			{"too many requests", Classification{
				Category: CategoryRateLimit, Severity: model.SeverityLow,
				IsRetryable: true, IsReadOnlyCompatible: true,
				SuggestedAction: "retry with exponential backoff",
				MetricsLabel:    "rpc_rate_limit",
			}},
			{"execution reverted", Classification{
				Category: CategoryPermanent, Severity: model.SeverityMedium,
				IsRetryable: false, IsReadOnlyCompatible: true,
				SuggestedAction: "check the call arguments and contract state",
				MetricsLabel:    "rpc_reverted",
			}},
			{"invalid argument", Classification{
				Category: CategoryPermanent, Severity: model.SeverityMedium,
				IsRetryable: false, IsReadOnlyCompatible: true,
				SuggestedAction: "check the call arguments",
				MetricsLabel:    "rpc_invalid",
			}},
			{"connection refused", Classification{
				Category: CategoryTransient, Severity: model.SeverityHigh,
				IsRetryable: true, IsReadOnlyCompatible: true,
				SuggestedAction: "retry, check RPC endpoint health",
				MetricsLabel:    "rpc_connection",
			}},
			{"timeout", Classification{
				Category: CategoryTransient, Severity: model.SeverityMedium,
				IsRetryable: true, IsReadOnlyCompatible: true,
				SuggestedAction: "retry with backoff",
				MetricsLabel:    "rpc_timeout",
			}},
		},
		apiPatterns: []pattern{
			{"rate limit", Classification{
				Category: CategoryRateLimit, Severity: model.SeverityLow,
				IsRetryable: true, IsReadOnlyCompatible: true,
				SuggestedAction: "retry with exponential backoff",
				MetricsLabel:    "api_rate_limit",
			}},
			{"429", Classification{
				Category: CategoryRateLimit, Severity: model.SeverityLow,
				IsRetryable: true, IsReadOnlyCompatible: true,
				SuggestedAction: "retry with exponential backoff",
				MetricsLabel:    "api_rate_limit",
			}},
			{"unauthorized", Classification{
				Category: CategorySecurity, Severity: model.SeverityHigh,
				IsRetryable: false, IsReadOnlyCompatible: true,
				SuggestedAction: "check the API key",
				MetricsLabel:    "api_auth", ShouldAlert: true,
			}},
			{"service unavailable", Classification{
				Category: CategoryTransient, Severity: model.SeverityMedium,
				IsRetryable: true, IsReadOnlyCompatible: true,
				SuggestedAction: "retry with backoff, consider a fallback provider",
				MetricsLabel:    "api_unavailable",
			}},
			{"timeout", Classification{
				Category: CategoryTransient, Severity: model.SeverityMedium,
				IsRetryable: true, IsReadOnlyCompatible: true,
				SuggestedAction: "retry with backoff",
				MetricsLabel:    "api_timeout",
			}},
		},
	}

	sortByLengthDesc(c.databasePatterns)
	sortByLengthDesc(c.blockchainPatterns)
	sortByLengthDesc(c.apiPatterns)
	return c
}

// sortByLengthDesc orders patterns longest-first so the most specific
// substring wins. Equal lengths fall back to lexical order to keep the
// result stable across runs.
func sortByLengthDesc(patterns []pattern) {
	sort.SliceStable(patterns, func(i, j int) bool {
		if len(patterns[i].substr) != len(patterns[j].substr) {
			return len(patterns[i].substr) > len(patterns[j].substr)
		}
		return patterns[i].substr < patterns[j].substr
	})
}

// Classify derives the handling policy for an error. It is pure: no
// logging, no counters, no I/O.
func (c *Classifier) Classify(err error) Classification {
	kind := apperrors.KindOf(err)

	switch kind {
	case apperrors.KindDatabase:
		return matchOrDefault(c.databasePatterns, apperrors.MessageOf(err), Classification{
			Category: CategoryPermanent, Severity: model.SeverityHigh,
			IsRetryable: false, IsReadOnlyCompatible: true,
			SuggestedAction: "investigate the unrecognized database error",
			MetricsLabel:    "db_unknown", ShouldAlert: true,
		})
	case apperrors.KindBlockchain:
		return matchOrDefault(c.blockchainPatterns, apperrors.MessageOf(err), Classification{
			Category: CategoryTransient, Severity: model.SeverityMedium,
			IsRetryable: true, IsReadOnlyCompatible: true,
			SuggestedAction: "retry, then investigate the RPC endpoint",
			MetricsLabel:    "rpc_unknown",
		})
	case apperrors.KindAPI:
		return matchOrDefault(c.apiPatterns, apperrors.MessageOf(err), Classification{
			Category: CategoryTransient, Severity: model.SeverityMedium,
			IsRetryable: true, IsReadOnlyCompatible: true,
			SuggestedAction: "retry, then investigate the provider",
			MetricsLabel:    "api_unknown",
		})
	case apperrors.KindValidation:
		return Classification{
			Category: CategoryPermanent, Severity: model.SeverityLow,
			IsRetryable: false, IsReadOnlyCompatible: true,
			SuggestedAction: "fix the request payload",
			MetricsLabel:    "validation",
		}
	case apperrors.KindNotFound:
		return Classification{
			Category: CategoryPermanent, Severity: model.SeverityLow,
			IsRetryable: false, IsReadOnlyCompatible: true,
			SuggestedAction: "verify the requested entity exists",
			MetricsLabel:    "not_found",
		}
	case apperrors.KindAuthentication:
		return Classification{
			Category: CategorySecurity, Severity: model.SeverityHigh,
			IsRetryable: false, IsReadOnlyCompatible: true,
			SuggestedAction: "re-authenticate",
			MetricsLabel:    "auth_failed", ShouldAlert: true,
		}
	case apperrors.KindAuthorization:
		return Classification{
			Category: CategorySecurity, Severity: model.SeverityHigh,
			IsRetryable: false, IsReadOnlyCompatible: true,
			SuggestedAction: "review the caller's permissions",
			MetricsLabel:    "authz_denied", ShouldAlert: true,
		}
	case apperrors.KindRateLimit:
		return Classification{
			Category: CategoryRateLimit, Severity: model.SeverityLow,
			IsRetryable: true, IsReadOnlyCompatible: true,
			SuggestedAction: "retry with exponential backoff",
			MetricsLabel:    "rate_limited",
		}
	case apperrors.KindConfig:
		return Classification{
			Category: CategoryConfiguration, Severity: model.SeverityCritical,
			IsRetryable: false, IsReadOnlyCompatible: true,
			SuggestedAction: "fix the configuration and restart",
			MetricsLabel:    "config", ShouldAlert: true,
		}
	case apperrors.KindUnsupportedChain:
		return Classification{
			Category: CategoryPermanent, Severity: model.SeverityLow,
			IsRetryable: false, IsReadOnlyCompatible: true,
			SuggestedAction: "use a supported chain",
			MetricsLabel:    "unsupported_chain",
		}
	default:
		return Classification{
			Category: CategoryPermanent, Severity: model.SeverityMedium,
			IsRetryable: false, IsReadOnlyCompatible: true,
			SuggestedAction: "investigate the unclassified error",
			MetricsLabel:    "unknown", ShouldAlert: true,
		}
	}
}

// matchOrDefault returns the classification of the first (longest) pattern
// contained in the lower-cased message, or the default when none match.
func matchOrDefault(patterns []pattern, message string, fallback Classification) Classification {
	lower := strings.ToLower(message)
	for _, p := range patterns {
		if strings.Contains(lower, p.substr) {
			return p.class
		}
	}
	return fallback
}

// DatabaseMetricLabels are the labels the degradation controller sums when
// computing its database error count.
var DatabaseMetricLabels = []string{"db_connection", "db_deadlock", "db_timeout"}

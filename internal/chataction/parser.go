package chataction

import (
	"context"
	"regexp"
	"strings"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
)

// ActionType enumerates the closed set of recognized action tags. Extending
// the protocol means adding a variant here plus a dispatcher handler.
type ActionType string

const (
	ActionNavigate          ActionType = "navigate"
	ActionAddComment        ActionType = "add_comment"
	ActionAddSummaryComment ActionType = "add_summary_comment"
	ActionDraftComment      ActionType = "draft_comment"
	ActionHighlightText     ActionType = "highlight_text"
	ActionShowSource        ActionType = "show_source"
	ActionNextIssue         ActionType = "next_issue"
	ActionPrevIssue         ActionType = "prev_issue"
	ActionRetry             ActionType = "retry"
	ActionGenerateList      ActionType = "generate_list"
)

var knownTypes = map[ActionType]struct{}{
	ActionNavigate:          {},
	ActionAddComment:        {},
	ActionAddSummaryComment: {},
	ActionDraftComment:      {},
	ActionHighlightText:     {},
	ActionShowSource:        {},
	ActionNextIssue:         {},
	ActionPrevIssue:         {},
	ActionRetry:             {},
	ActionGenerateList:      {},
}

func (t ActionType) Known() bool {
	_, ok := knownTypes[t]
	return ok
}

// Action is parsed out of AI response text. Ephemeral: only its effects
// (comments, navigation) are ever persisted.
type Action struct {
	Type    ActionType `json:"type"`
	Label   string     `json:"label"`
	Payload string     `json:"payload,omitempty"`
}

// The tag grammar is [ACTION:<type>|<label>|<payload>] with the payload part
// optional. Malformed or unterminated tags simply fail to match and stay in
// the text; the parser never errors on free-form input.
var tagRegex = regexp.MustCompile(`\[ACTION:([a-z_]+)\|([^|\[\]]*)(?:\|([^\[\]]*))?\]`)

// Parse extracts every action tag from a response in a single scan and
// returns the deduplicated actions plus the clean text with all matched tags
// removed and the remainder trimmed. The AI collaborator is untrusted and may
// repeat itself: a tag whose dedup key (type+payload, or type+label when no
// payload) was already seen in this response is skipped with a log line.
// Parsing is stateless; the same text always yields the same result.
func Parse(ctx context.Context, text string) ([]Action, string) {
	matches := tagRegex.FindAllStringSubmatch(text, -1)
	actions := make([]Action, 0, len(matches))
	seen := map[string]struct{}{}
	for _, m := range matches {
		action := Action{
			Type:    ActionType(m[1]),
			Label:   strings.TrimSpace(m[2]),
			Payload: strings.TrimSpace(m[3]),
		}
		key := dedupKey(action)
		if _, dup := seen[key]; dup {
			logutil.GetLogger(ctx).Debug("skip duplicate chat action",
				zap.String("type", string(action.Type)), zap.String("key", key))
			continue
		}
		seen[key] = struct{}{}
		actions = append(actions, action)
	}
	clean := strings.TrimSpace(tagRegex.ReplaceAllString(text, ""))
	return actions, clean
}

func dedupKey(a Action) string {
	if a.Payload != "" {
		return string(a.Type) + "|" + a.Payload
	}
	return string(a.Type) + "|" + a.Label
}

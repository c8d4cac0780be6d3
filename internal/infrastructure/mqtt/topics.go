package mqtt

import (
	"fmt"
	"strings"
)

// DefaultTopicPrefix is used when mqtt.topic_prefix is empty.
const DefaultTopicPrefix = "finboard"

// Topics builds FinBoard topic names under a prefix.
//
//	topics := mqtt.NewTopics("finboard")
//	topics.WidgetState("widget-1700000000000-abc1234")
//	// Returns: "finboard/widget/widget-1700000000000-abc1234/state"
type Topics struct {
	Prefix string
}

// NewTopics returns builders for prefix, trimming slashes and falling back
// to DefaultTopicPrefix.
func NewTopics(prefix string) Topics {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	return Topics{Prefix: prefix}
}

func (t Topics) base() string {
	if t.Prefix == "" {
		return DefaultTopicPrefix
	}
	return t.Prefix
}

// WidgetState returns the retained state topic for one widget.
//
// Example: finboard/widget/{id}/state
func (t Topics) WidgetState(id string) string {
	return fmt.Sprintf("%s/widget/%s/state", t.base(), id)
}

// AllWidgetStates returns a pattern matching every widget state topic.
//
// Pattern: finboard/widget/+/state
func (t Topics) AllWidgetStates() string {
	return fmt.Sprintf("%s/widget/+/state", t.base())
}

// WidgetRefresh returns the command topic that asks for an immediate
// refresh of one widget.
//
// Example: finboard/widget/{id}/refresh
func (t Topics) WidgetRefresh(id string) string {
	return fmt.Sprintf("%s/widget/%s/refresh", t.base(), id)
}

// AllWidgetRefreshes returns a pattern matching every refresh command.
func (t Topics) AllWidgetRefreshes() string {
	return fmt.Sprintf("%s/widget/+/refresh", t.base())
}

// WidgetID extracts the widget ID from a {prefix}/widget/{id}/... topic.
func (t Topics) WidgetID(topic string) (string, bool) {
	rest, ok := strings.CutPrefix(topic, t.base()+"/widget/")
	if !ok {
		return "", false
	}
	id, _, ok := strings.Cut(rest, "/")
	if !ok || id == "" {
		return "", false
	}
	return id, true
}

// SystemStatus returns the online/offline status topic, also used as LWT.
//
// Example: finboard/system/status
func (t Topics) SystemStatus() string {
	return fmt.Sprintf("%s/system/status", t.base())
}

// All returns a pattern matching every topic under the prefix.
func (t Topics) All() string {
	return t.base() + "/#"
}

package prompt

import (
	"strings"

	"github.com/varsilias/mpt-chat/pkg/types"
)

// Role markers of the ChatML-style format the endpoint was fine-tuned on.
const (
	StartMarker = "<|im_start|>"
	EndMarker   = "<|im_end|>"
)

const DefaultSystemPrompt = "A conversation between a user and an LLM-based AI assistant. The assistant gives helpful and honest answers."

// Template wraps a content slot between an opening and a closing role marker.
type Template struct {
	Open  string
	Close string
}

func roleTemplate(role types.Role) Template {
	return Template{
		Open:  StartMarker + string(role) + "\n",
		Close: EndMarker + "\n",
	}
}

var (
	SystemTemplate    = roleTemplate(types.RoleSystem)
	UserTemplate      = roleTemplate(types.RoleUser)
	AssistantTemplate = roleTemplate(types.RoleAssistant)
)

func (t Template) Render(content string) string {
	return t.Open + content + t.Close
}

// Prefix is everything in front of the content slot. Appending the
// assistant prefix to a prompt asks the model to continue as the assistant.
func (t Template) Prefix() string { return t.Open }

var markerStripper = strings.NewReplacer(StartMarker, "", EndMarker, "")

// StripMarkers removes both role marker literals from s.
func StripMarkers(s string) string {
	return markerStripper.Replace(s)
}

package local

import (
	"encoding/json"
	"fmt"
	"strings"

	"lingo/internal/chat"
)

// DefaultOptions are offered when the model's suggestions cannot be parsed.
var DefaultOptions = []string{
	"Can you tell me more about this topic?",
	"What are your thoughts on this matter?",
	"Could we discuss something else?",
}

const maxOptions = 3

// historyPrompt renders the persona preamble and the transcript.
func historyPrompt(persona *chat.Persona, topic string, history []chat.Message) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are %s, %s.\n", persona.Name, persona.Description)
	b.WriteString("Important: You must always reply only in fluent English. Never use any other language.\n")
	if topic != "" {
		fmt.Fprintf(&b, "Current conversation topic: %s\n", topic)
	}
	b.WriteString("Conversation history:\n")
	for _, m := range history {
		if m.IsUser {
			fmt.Fprintf(&b, "User: %s\n", m.Content)
		} else {
			fmt.Fprintf(&b, "%s: %s\n", persona.Name, m.Content)
		}
	}
	return b.String()
}

func replyPrompt(persona *chat.Persona, topic string, history []chat.Message) string {
	return historyPrompt(persona, topic, history) +
		fmt.Sprintf("\nRespond as %s to the user's last message. Maintain character traits, speak naturally in English, and never mention being an AI or model.", persona.Name)
}

func optionsPrompt(persona *chat.Persona, topic string, history []chat.Message) string {
	return historyPrompt(persona, topic, history) +
		"\nBased on the conversation history, generate 3 possible follow-up questions the user might ask. Return ONLY a JSON array format with English questions. Format: [\"question1\", \"question2\", \"question3\"]"
}

func titlePrompt(persona *chat.Persona, topic string, history []chat.Message) string {
	var b strings.Builder
	b.WriteString("Generate a concise English title (max 15 words) for this conversation:\n\n")
	for _, m := range history {
		role := persona.Name
		if m.IsUser {
			role = "User"
		}
		fmt.Fprintf(&b, "%s: %s\n", role, m.Content)
	}
	if topic != "" {
		fmt.Fprintf(&b, "\nTopic: %s", topic)
	}
	return b.String()
}

// parseOptions extracts the JSON array from a model answer. Models often
// wrap it in a code fence or a sentence, so the outermost brackets are used.
func parseOptions(answer string) ([]string, bool) {
	start := strings.Index(answer, "[")
	end := strings.LastIndex(answer, "]")
	if start < 0 || end <= start {
		return nil, false
	}

	var raw []any
	if err := json.Unmarshal([]byte(answer[start:end+1]), &raw); err != nil {
		return nil, false
	}
	var out []string
	for _, v := range raw {
		s, ok := v.(string)
		if !ok {
			continue
		}
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
		if len(out) == maxOptions {
			break
		}
	}
	return out, len(out) > 0
}

// cleanTitle trims quotes and a "Title:" prefix the model may add.
func cleanTitle(answer string) string {
	t := strings.TrimSpace(answer)
	if i := strings.IndexByte(t, '\n'); i >= 0 {
		t = t[:i]
	}
	if len(t) > 6 && strings.EqualFold(t[:6], "title:") {
		t = strings.TrimSpace(t[6:])
	}
	t = strings.Trim(t, "\"'*# ")
	if words := strings.Fields(t); len(words) > 15 {
		t = strings.Join(words[:15], " ")
	}
	return t
}

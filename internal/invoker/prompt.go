package invoker

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sells-group/dealsense/internal/agent"
	"github.com/sells-group/dealsense/internal/model"
)

// maxTranscriptChars bounds how much conversation text goes into one
// prompt. Older messages are dropped first; the most recent exchanges carry
// the signal for every agent.
const maxTranscriptChars = 24000

const userPromptTemplate = `Opportunity context:
%s

Conversation transcript (%d messages, oldest first):
%s
%s
Output JSON schema:
%s

Analyze the conversation and return a single valid JSON object matching the schema above. Include a "confidence" value between 0.0 and 1.0 reflecting how well the conversation supports your output. Do not include any text outside the JSON object.`

// BuildUserPrompt assembles the user message for one agent invocation.
// Upstream findings are only included for decision agents.
func BuildUserPrompt(def agent.Definition, opp model.OpportunityContext, transcript []model.Message, upstream map[model.AgentType]model.Extraction) string {
	findings := ""
	if def.Category == model.CategoryDecision {
		findings = formatFindings(def, upstream)
	}

	return fmt.Sprintf(userPromptTemplate,
		formatOpportunity(opp),
		len(transcript),
		formatTranscript(transcript),
		findings,
		def.Schema,
	)
}

func formatOpportunity(opp model.OpportunityContext) string {
	var b strings.Builder
	fmt.Fprintf(&b, "- Name: %s\n", opp.Name)
	fmt.Fprintf(&b, "- Current stage: %s\n", opp.Stage)
	fmt.Fprintf(&b, "- Value: %.2f\n", opp.Value)
	fmt.Fprintf(&b, "- Probability: %d%%\n", opp.Probability)
	fmt.Fprintf(&b, "- Temperature: %s\n", opp.Temperature)
	if opp.Customer.Name != "" || opp.Customer.Company != "" {
		fmt.Fprintf(&b, "- Customer: %s (%s)\n", opp.Customer.Name, opp.Customer.Company)
	}
	if opp.Vendor.Name != "" || opp.Vendor.Company != "" {
		fmt.Fprintf(&b, "- Vendor: %s (%s)\n", opp.Vendor.Name, opp.Vendor.Company)
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatTranscript(transcript []model.Message) string {
	if len(transcript) == 0 {
		return "(no messages yet)"
	}

	// Assemble newest-first until the budget is hit, then restore order.
	var kept []string
	total := 0
	for i := len(transcript) - 1; i >= 0; i-- {
		m := transcript[i]
		line := fmt.Sprintf("[%s] %s: %s", m.SentAt.Format("2006-01-02 15:04"), m.SenderRole, m.Text)
		if total+len(line) > maxTranscriptChars && len(kept) > 0 {
			break
		}
		kept = append(kept, line)
		total += len(line)
	}
	for i, j := 0, len(kept)-1; i < j; i, j = i+1, j-1 {
		kept[i], kept[j] = kept[j], kept[i]
	}
	return strings.Join(kept, "\n")
}

// formatFindings renders the available upstream extractions for a decision
// agent, and names the ones that are missing so the model can temper its
// confidence.
func formatFindings(def agent.Definition, upstream map[model.AgentType]model.Extraction) string {
	var b strings.Builder
	b.WriteString("\nUpstream agent findings:\n")

	var missing []string
	for _, t := range def.Consumes {
		e, ok := upstream[t]
		if !ok {
			missing = append(missing, string(t))
			continue
		}
		payload, err := json.Marshal(e.Payload)
		if err != nil {
			missing = append(missing, string(t))
			continue
		}
		fmt.Fprintf(&b, "--- %s (version %d, confidence %.2f) ---\n%s\n", t, e.Version, e.Confidence, payload)
	}

	if len(missing) > 0 {
		fmt.Fprintf(&b, "Unavailable findings: %s. Work with the subset above and report lower confidence accordingly.\n", strings.Join(missing, ", "))
	}
	if len(missing) == len(def.Consumes) {
		b.WriteString("No upstream findings are available; rely on the transcript alone and report minimal confidence.\n")
	}
	return b.String()
}

// extractJSON returns the first top-level JSON object in text, tolerating
// markdown code fences and prose around the object.
func extractJSON(text string) string {
	text = strings.TrimSpace(text)
	if idx := strings.Index(text, "```"); idx >= 0 {
		rest := text[idx+3:]
		rest = strings.TrimPrefix(rest, "json")
		if end := strings.Index(rest, "```"); end >= 0 {
			text = rest[:end]
		} else {
			text = rest
		}
		text = strings.TrimSpace(text)
	}

	start := strings.Index(text, "{")
	if start < 0 {
		return text
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		switch {
		case escaped:
			escaped = false
		case c == '\\':
			escaped = inString
		case c == '"':
			inString = !inString
		case !inString && c == '{':
			depth++
		case !inString && c == '}':
			depth--
			if depth == 0 {
				return text[start : i+1]
			}
		}
	}
	return text[start:]
}

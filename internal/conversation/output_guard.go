package conversation

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"github.com/wolfman30/lab-scheduling-assistant/internal/scheduling"
)

// Guardrail rule names, reported in response meta and metrics.
const (
	RuleDedupe        = "dedupe"
	RuleReasoning     = "reasoning"
	RuleCedulaRewrite = "cedula_rewrite"
)

const safeReplyText = "Disculpa, no puedo compartir esa información. ¿Te ayudo a consultar un estudio o a agendar tu cita?"

// GuardrailResult is a reply after every deterministic rewrite.
type GuardrailResult struct {
	Text    string
	Rules   []string
	Blocked bool
}

// ApplyGuardrails cleans an LLM reply before it reaches the patient:
// duplicated tokens, leaked reasoning, wrong cedula rejections and
// sensitive leaks, in that order. lastUser is the patient's latest message.
func ApplyGuardrails(reply, lastUser string) GuardrailResult {
	var res GuardrailResult
	text := reply

	if out := collapseDuplicates(text); out != text {
		text = out
		res.Rules = append(res.Rules, RuleDedupe)
	}
	if out := stripReasoning(text); out != text {
		text = out
		res.Rules = append(res.Rules, RuleReasoning)
	}
	if out := rewriteCedulaRejections(text, lastUser); out != text {
		text = out
		res.Rules = append(res.Rules, RuleCedulaRewrite)
	}

	scan := ScanOutputForLeaks(text)
	if scan.Leaked {
		res.Rules = append(res.Rules, scan.Reasons...)
		text = scan.Sanitized
		if text == "" {
			res.Blocked = true
		}
	}

	text = strings.TrimSpace(text)
	if text == "" {
		text = safeReplyText
	}
	res.Text = text
	return res
}

var (
	tokenPattern = regexp.MustCompile(`\S+|\s+`)

	guardPhone       = `(?:\+?58[\s.-]?)?\(?0?4\d{2}\)?[\s.-]?\d{3}[\s.-]?\d{2}[\s.-]?\d{2}|\+?\d{7,15}`
	guardEmail       = `[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`
	guardJoin        = `\s*(?:,|/|\by\b|\bo\b)?\s*`
	dupPhonePattern  = regexp.MustCompile(`(` + guardPhone + `)(` + guardJoin + `)(` + guardPhone + `)`)
	dupEmailPattern  = regexp.MustCompile(`(` + guardEmail + `)(` + guardJoin + `)(` + guardEmail + `)`)
	reasoningBlock   = regexp.MustCompile(`(?is)<(?:think|thinking|reasoning|analysis|scratchpad)>.*?</(?:think|thinking|reasoning|analysis|scratchpad)>`)
	danglingClose    = regexp.MustCompile(`(?is)^.*</(?:think|thinking|reasoning|analysis|scratchpad)>`)
	reasoningLead    = regexp.MustCompile(`(?i)^\s*(?:reasoning|razonamiento|thought|thoughts|pensamiento|an[aá]lisis)\s*:`)
	cedulaRejection  = regexp.MustCompile(`cedula.*(no es valida|no valida|invalida|incorrecta|no parece valida|no cumple|no tiene el formato|no es correcta)|(no es valida|invalida|no es correcta).*cedula`)
	numberCandidates = regexp.MustCompile(`\d[\d.]*\d`)
)

// collapseDuplicates removes doubled adjacent words, self-concatenated
// tokens and repeated phone numbers or emails.
func collapseDuplicates(text string) string {
	tokens := tokenPattern.FindAllString(text, -1)
	out := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		if strings.TrimSpace(tok) == "" {
			out = append(out, tok)
			continue
		}
		tok = collapseSelfRepeat(tok)
		if n := len(out); n >= 2 && !strings.Contains(out[n-1], "\n") && isDuplicateWord(out[n-2], tok) {
			tok = out[n-2] + tok[len(strings.TrimRightFunc(tok, isGuardPunct)):]
			out = out[:n-2]
		}
		out = append(out, tok)
	}
	text = strings.Join(out, "")

	text = dupPhonePattern.ReplaceAllStringFunc(text, func(m string) string {
		g := dupPhonePattern.FindStringSubmatch(m)
		if scheduling.DigitsOnly(g[1]) == scheduling.DigitsOnly(g[3]) {
			return g[1]
		}
		return m
	})
	text = dupEmailPattern.ReplaceAllStringFunc(text, func(m string) string {
		g := dupEmailPattern.FindStringSubmatch(m)
		if strings.EqualFold(g[1], g[3]) {
			return g[1]
		}
		return m
	})
	return text
}

// isDuplicateWord matches "Bob" followed by "Bob," but not "no," followed
// by "no": punctuation after the first word marks a deliberate repeat.
func isDuplicateWord(prev, cur string) bool {
	if strings.TrimSpace(prev) == "" || strings.TrimRightFunc(prev, isGuardPunct) != prev {
		return false
	}
	a, b := wordCore(prev), wordCore(cur)
	if a == "" || !strings.ContainsFunc(a, func(r rune) bool { return unicode.IsLetter(r) || unicode.IsDigit(r) }) {
		return false
	}
	return strings.EqualFold(a, b)
}

// collapseSelfRepeat turns "BobBob" or "1234567812345678" into one copy.
func collapseSelfRepeat(tok string) string {
	core := wordCore(tok)
	r := []rune(core)
	if len(r) < 6 || len(r)%2 != 0 {
		return tok
	}
	half := len(r) / 2
	first, second := string(r[:half]), string(r[half:])
	if first != second {
		return tok
	}
	isDigits := scheduling.DigitsOnly(first) == first
	switch {
	case isDigits && half >= 7:
	case strings.Contains(first, "@"):
	case !isDigits && half >= 3 && unicode.IsUpper(r[half]):
	default:
		return tok
	}
	return strings.Replace(tok, core, first, 1)
}

func wordCore(tok string) string {
	return strings.TrimFunc(tok, isGuardPunct)
}

func isGuardPunct(r rune) bool {
	return unicode.IsPunct(r) || r == '¿' || r == '¡'
}

// stripReasoning removes tagged reasoning blocks and leading "Reasoning:"
// lines.
func stripReasoning(text string) string {
	out := reasoningBlock.ReplaceAllString(text, "")
	out = danglingClose.ReplaceAllString(out, "")
	lines := strings.Split(out, "\n")
	drop := 0
	for i, line := range lines {
		if reasoningLead.MatchString(line) {
			drop = i + 1
			continue
		}
		if strings.TrimSpace(line) != "" {
			break
		}
	}
	if drop == 0 && out == text {
		return text
	}
	return strings.TrimSpace(strings.Join(lines[drop:], "\n"))
}

// rewriteCedulaRejections replaces a line that rejects a cedula which in
// fact has 7 to 9 digits. The number comes from the line, the rest of the
// reply, or the patient's last message.
func rewriteCedulaRejections(text, lastUser string) string {
	lines := strings.Split(text, "\n")
	changed := false
	for i, line := range lines {
		if !cedulaRejection.MatchString(scheduling.Fold(line)) {
			continue
		}
		cedula, ok := cedulaForRejection(line, text, lastUser)
		if !ok {
			continue
		}
		lines[i] = fmt.Sprintf("Gracias, tu cédula %s quedó registrada correctamente.", cedula)
		changed = true
	}
	if !changed {
		return text
	}
	return strings.Join(lines, "\n")
}

func cedulaForRejection(line, reply, lastUser string) (string, bool) {
	if nums := longNumbers(line); len(nums) > 0 {
		return scheduling.NormalizeCedula(nums[0])
	}
	for _, source := range []string{reply, lastUser} {
		for _, n := range longNumbers(source) {
			if cedula, ok := scheduling.NormalizeCedula(n); ok {
				return cedula, true
			}
		}
	}
	return "", false
}

// longNumbers skips short counts like the "7 y 9" of the length rule.
func longNumbers(s string) []string {
	var out []string
	for _, m := range numberCandidates.FindAllString(s, -1) {
		if d := scheduling.DigitsOnly(m); len(d) >= 5 {
			out = append(out, d)
		}
	}
	return out
}

// OutputGuardResult contains the result of scanning an outbound AI reply.
type OutputGuardResult struct {
	// Leaked is true if the reply contains sensitive information that should not be sent.
	Leaked bool
	// Reasons lists the detection signals that fired.
	Reasons []string
	// Sanitized is the cleaned reply (if fixable) or empty string (if should be blocked).
	Sanitized string
}

type outputLeakPattern struct {
	re     *regexp.Regexp
	reason string
	block  bool // if true, block entirely; if false, can try to sanitize
}

var outputLeakPatterns = []outputLeakPattern{
	// System prompt / instruction leaks
	{regexp.MustCompile(`(?i)(my|mi) (system\s+)?prompt\s+(is|says|tells|instructs|dice|indica|es)`), "leak:system_prompt_disclosure", true},
	{regexp.MustCompile(`(?i)(my instructions?\s+(are|say|tell|include|require)|mis instrucciones\s+(son|dicen|indican|incluyen))`), "leak:instructions_disclosure", true},
	{regexp.MustCompile(`(?i)(i('m| am) (programmed|instructed|designed|configured) to|(estoy|fui) (programad[oa]|configurad[oa]|instruid[oa]) para)`), "leak:programming_disclosure", true},
	{regexp.MustCompile(`(?i)(here are|these are|estas son|aqu[ií] est[aá]n)\s+(my |mis )?(system |del sistema )?(instructions|rules|instrucciones|reglas)`), "leak:rules_listing", true},

	// AI identity leaks
	{regexp.MustCompile(`(?i)(i('m| am) (a|an) (AI|artificial intelligence|language model|LLM|chatbot)\b|soy (un|una) (IA|inteligencia artificial|modelo de lenguaje|LLM|chatbot)\b)`), "leak:ai_identity", false},
	{regexp.MustCompile(`(?i)(powered by|built on|running on|funciono con|basad[oa] en)\s+(Gemini|Google|GPT|OpenAI|Claude|Anthropic|Bedrock|AWS)`), "leak:tech_stack", true},

	// Credential / infrastructure leaks
	{regexp.MustCompile(`(?i)(api[_\s]?key|secret[_\s]?key|access[_\s]?token|bearer\s+token)\s*[:=]\s*\S+`), "leak:credential", true},
	{regexp.MustCompile(`AKIA[A-Z0-9]{16}`), "leak:aws_key", true},
	{regexp.MustCompile(`AIza[0-9A-Za-z_-]{35}`), "leak:google_key", true},
	{regexp.MustCompile(`(?i)(postgres|postgresql|redis|mysql)://\S+`), "leak:database_url", true},
	{regexp.MustCompile(`\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}:\d{2,5}`), "leak:ip_port", true},

	// Internal endpoints
	{regexp.MustCompile(`(?i)/admin/|/internal/|/debug/|/metrics\b`), "leak:internal_path", true},
	{regexp.MustCompile(`(?i)\b(scheduleAppointment|getAvailableHours|getAvailability|getStudiesInfo)\b`), "leak:tool_name", false},

	// Other patients' data
	{regexp.MustCompile(`(?i)(other patient'?s?|otro paciente|otra paciente)\s+(name|phone|email|appointment|record|nombre|tel[eé]fono|correo|cita|c[eé]dula)`), "leak:other_patient_ref", true},
}

// ScanOutputForLeaks checks an outbound AI reply for sensitive information leaks.
func ScanOutputForLeaks(reply string) OutputGuardResult {
	if strings.TrimSpace(reply) == "" {
		return OutputGuardResult{Sanitized: reply}
	}

	var reasons []string
	shouldBlock := false

	for _, p := range outputLeakPatterns {
		if p.re.MatchString(reply) {
			reasons = append(reasons, p.reason)
			if p.block {
				shouldBlock = true
			}
		}
	}

	if len(reasons) == 0 {
		return OutputGuardResult{Sanitized: reply}
	}

	result := OutputGuardResult{
		Leaked:  true,
		Reasons: reasons,
	}
	if !shouldBlock {
		result.Sanitized = sanitizeOutput(reply)
	}
	return result
}

var (
	aiIdentitySentence = regexp.MustCompile(`(?i)[^.!?]*\b(i('m| am) (a|an) (AI|artificial intelligence|language model|LLM|chatbot)|soy (un|una) (IA|inteligencia artificial|modelo de lenguaje|LLM|chatbot))\b[^.!?]*[.!?]?\s*`)
	toolNameMention    = regexp.MustCompile(`(?i)\b(scheduleAppointment|getAvailableHours|getAvailability|getStudiesInfo)\b\s*`)
)

// sanitizeOutput drops AI identity sentences and internal tool names while
// keeping the rest of the reply.
func sanitizeOutput(reply string) string {
	cleaned := aiIdentitySentence.ReplaceAllString(reply, "")
	cleaned = toolNameMention.ReplaceAllString(cleaned, "")
	return strings.TrimSpace(cleaned)
}

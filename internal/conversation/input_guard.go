package conversation

import (
	"regexp"
	"strings"
)

const (
	inputBlockScore = 0.7
	inputWarnScore  = 0.3
)

// inputBlockedReply steers the patient back to scheduling without echoing
// anything from the rejected message.
const inputBlockedReply = "Solo puedo ayudarte con información de nuestros estudios y con el agendamiento de citas. ¿Qué estudio necesitas?"

// InputScan is the verdict on one inbound user message.
type InputScan struct {
	Blocked   bool
	Score     float64
	Signals   []string
	Sanitized string
}

type inputSignal struct {
	re     *regexp.Regexp
	name   string
	weight float64
}

var inputSignals = []inputSignal{
	// instruction override, English and Spanish
	{regexp.MustCompile(`(?i)(ignore|disregard|forget)\s+(all\s+)?(the\s+)?(previous|prior|above|your)\s+(instructions?|rules?|prompts?)`), "override", 0.9},
	{regexp.MustCompile(`(?i)(ignora|olvida|descarta)\s+(todas?\s+)?(las?\s+|tus\s+)?(instrucciones|reglas|indicaciones)(\s+(anteriores|previas))?`), "override", 0.9},
	{regexp.MustCompile(`(?i)(you\s+are\s+now|from\s+now\s+on\s+you\s+are)\s+(a|an|my)\s+`), "role_reassignment", 0.7},
	{regexp.MustCompile(`(?i)(ahora\s+eres|a\s+partir\s+de\s+ahora\s+eres|act[uú]a\s+como)\s+(un|una|mi)\s+`), "role_reassignment", 0.7},
	{regexp.MustCompile(`(?i)jailbreak|DAN\s*mode|developer\s*mode|modo\s+desarrollador|sin\s+restricciones`), "jailbreak", 0.9},
	{regexp.MustCompile(`(?i)(new\s+instructions?|system\s*prompt|nuevas\s+instrucciones)\s*:`), "new_instructions", 0.9},

	// exfiltration of the prompt, other patients or secrets
	{regexp.MustCompile(`(?i)(reveal|show|print|repeat)\s+(me\s+)?(your\s+)?(system\s+prompt|instructions|hidden\s+prompt)`), "prompt_exfiltration", 0.8},
	{regexp.MustCompile(`(?i)(mu[eé]strame|dime|revela|repite|imprime)\s+(tu|tus|el|las)\s+(prompt|instrucciones|reglas\s+internas|mensaje\s+del\s+sistema)`), "prompt_exfiltration", 0.8},
	{regexp.MustCompile(`(?i)(datos|citas|c[eé]dulas|tel[eé]fonos|nombres)\s+de\s+(otros|los\s+dem[aá]s|todos\s+los)\s+pacientes`), "patient_exfiltration", 0.8},
	{regexp.MustCompile(`(?i)\b(api|secret|aws|database|db)\s*(key|token|password|secret)s?\b|contrase[nñ]a\s+de\s+la\s+base`), "secret_exfiltration", 0.8},

	// chat-template markers and markup
	{regexp.MustCompile(`(?i)\[/?INST\]|\[/?SYS\]|<\|im_start\|>|<\|im_end\|>|<\|system\|>|<\|user\|>|<\|assistant\|>`), "special_tokens", 0.9},
	{regexp.MustCompile(`(?i)###\s*(system|instruction|assistant|user|sistema)\s*:`), "role_markers", 0.7},
	{regexp.MustCompile(`(?i)<\s*(script|img|iframe|object|embed|style|svg|form)\b`), "html", 0.5},
	{regexp.MustCompile(`!\[[^\]]*\]\(https?://`), "markdown_image", 0.4},
}

var (
	specialTokenRe  = regexp.MustCompile(`(?i)\[/?INST\]|\[/?SYS\]|<\|im_start\|>|<\|im_end\|>|<\|system\|>|<\|user\|>|<\|assistant\|>`)
	roleMarkerRe    = regexp.MustCompile(`(?i)###\s*(system|instruction|assistant|user|sistema)\s*:`)
	htmlTagRe       = regexp.MustCompile(`(?i)<\s*(script|img|iframe|object|embed|style|svg|form)\b[^>]*>`)
	markdownImageRe = regexp.MustCompile(`!\[[^\]]*\]\(https?://[^)]+\)`)
)

// ScanInput scores a user message for prompt-injection signals. The score
// is the strongest signal plus 0.1 for each extra one, capped at 1.
func ScanInput(message string) InputScan {
	if strings.TrimSpace(message) == "" {
		return InputScan{Sanitized: message}
	}
	var (
		signals []string
		max     float64
	)
	for _, sig := range inputSignals {
		if !sig.re.MatchString(message) {
			continue
		}
		signals = append(signals, sig.name)
		if sig.weight > max {
			max = sig.weight
		}
	}
	score := max
	if len(signals) > 1 {
		score += float64(len(signals)-1) * 0.1
	}
	if score > 1 {
		score = 1
	}

	scan := InputScan{Score: score, Signals: signals, Sanitized: message}
	switch {
	case score >= inputBlockScore:
		scan.Blocked = true
	case score >= inputWarnScore:
		scan.Sanitized = sanitizeInput(message)
	}
	return scan
}

// sanitizeInput strips markup that should never reach the model while
// keeping the rest of the message.
func sanitizeInput(message string) string {
	cleaned := specialTokenRe.ReplaceAllString(message, "")
	cleaned = roleMarkerRe.ReplaceAllString(cleaned, "")
	cleaned = htmlTagRe.ReplaceAllString(cleaned, "")
	cleaned = markdownImageRe.ReplaceAllString(cleaned, "")
	return strings.TrimSpace(cleaned)
}

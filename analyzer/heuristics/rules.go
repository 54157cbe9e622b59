package heuristics

import "regexp"

// Rule is one row of the fallback classifier. A rule matches when any keyword starts a
// word of the lowercased text or when Pattern matches it.
type Rule struct {
	Name      string
	Keywords  []string
	Pattern   *regexp.Regexp
	Category  string
	Potential int // automation potential 0-100
	Tools     []string
	Trigger   string   // workflow trigger label
	Steps     []string // workflow step labels between trigger and output
}

// DefaultRules is the built-in table. Order is precedence: the first match wins, so
// narrow rules come before broad ones.
func DefaultRules() []Rule {
	return []Rule{
		{
			Name:      "social_media",
			Keywords:  []string{"social media", "instagram", "linkedin", "facebook", "tiktok", "posts", "beiträge"},
			Category:  "content",
			Potential: 75,
			Tools:     []string{"ChatGPT", "Canva", "Buffer"},
			Trigger:   "Content calendar entry due",
			Steps:     []string{"Draft post copy", "Generate visual", "Schedule post"},
		},
		{
			Name:      "invoicing",
			Keywords:  []string{"invoice", "rechnung", "billing", "accounts payable", "buchhaltung", "bookkeeping", "accounting"},
			Category:  "finance",
			Potential: 80,
			Tools:     []string{"DATEV", "Lexoffice", "Zapier"},
			Trigger:   "Invoice received",
			Steps:     []string{"Extract invoice data", "Match against orders", "Book entry"},
		},
		{
			Name:      "data_entry",
			Keywords:  []string{"data entry", "dateneingabe", "erfassen", "spreadsheet", "excel", "crm update", "stammdaten"},
			Pattern:   regexp.MustCompile(`\b(enter|input|transfer)\w*\s+(data|records)\b`),
			Category:  "data",
			Potential: 85,
			Tools:     []string{"UiPath", "Make", "Google Sheets"},
			Trigger:   "New record available",
			Steps:     []string{"Extract fields", "Validate values", "Write to target system"},
		},
		{
			Name:      "reporting",
			Keywords:  []string{"report", "bericht", "dashboard", "kpi", "auswertung", "analysis", "analyse"},
			Category:  "data",
			Potential: 70,
			Tools:     []string{"Power BI", "Google Looker Studio", "ChatGPT"},
			Trigger:   "Reporting period ends",
			Steps:     []string{"Collect source data", "Aggregate metrics", "Summarize findings"},
		},
		{
			Name:      "email",
			Keywords:  []string{"email", "e-mail", "mail", "inbox", "correspondence", "korrespondenz"},
			Category:  "communication",
			Potential: 65,
			Tools:     []string{"Microsoft Outlook", "ChatGPT", "Zapier"},
			Trigger:   "New email received",
			Steps:     []string{"Classify message", "Draft reply", "Route to owner"},
		},
		{
			Name:      "customer_support",
			Keywords:  []string{"customer", "kunde", "support", "ticket", "inquiries", "anfragen", "helpdesk"},
			Category:  "communication",
			Potential: 60,
			Tools:     []string{"Zendesk", "Intercom", "ChatGPT"},
			Trigger:   "Ticket created",
			Steps:     []string{"Categorize request", "Suggest answer", "Escalate if needed"},
		},
		{
			Name:      "scheduling",
			Keywords:  []string{"schedule", "calendar", "appointment", "termin", "meeting", "kalender"},
			Category:  "organization",
			Potential: 70,
			Tools:     []string{"Calendly", "Microsoft Bookings", "Zapier"},
			Trigger:   "Booking request",
			Steps:     []string{"Check availability", "Propose slot", "Send confirmation"},
		},
		{
			Name:      "recruiting",
			Keywords:  []string{"recruit", "applicant", "bewerb", "candidate", "hiring", "onboarding"},
			Category:  "hr",
			Potential: 50,
			Tools:     []string{"Personio", "LinkedIn Recruiter", "ChatGPT"},
			Trigger:   "Application received",
			Steps:     []string{"Parse resume", "Screen against criteria", "Schedule interview"},
		},
		{
			Name:      "writing",
			Keywords:  []string{"write", "schreiben", "erstelle", "text", "blog", "article", "documentation", "dokumentation"},
			Category:  "content",
			Potential: 65,
			Tools:     []string{"ChatGPT", "DeepL Write", "Notion AI"},
			Trigger:   "Writing request",
			Steps:     []string{"Outline content", "Generate draft", "Edit and approve"},
		},
		{
			Name:      "research",
			Keywords:  []string{"research", "recherche", "market", "markt", "competitor", "wettbewerb"},
			Category:  "research",
			Potential: 55,
			Tools:     []string{"Perplexity", "ChatGPT", "Feedly"},
			Trigger:   "Research question raised",
			Steps:     []string{"Gather sources", "Extract key facts", "Summarize"},
		},
		{
			Name:      "hands_on",
			Keywords:  []string{"repair", "reparatur", "maintenance", "wartung", "pflege", "patient care", "install", "montage"},
			Category:  "manual",
			Potential: 15,
			Tools:     []string{"Maintenance scheduling software"},
			Trigger:   "Service request",
			Steps:     []string{"Plan visit", "Perform work on site", "Log completion"},
		},
		{
			Name:      "leadership",
			Keywords:  []string{"lead", "führ", "negotiat", "verhandl", "strategy", "strategie", "coach", "mentor"},
			Category:  "interpersonal",
			Potential: 20,
			Tools:     []string{"Notion", "Miro"},
			Trigger:   "Decision needed",
			Steps:     []string{"Prepare briefing", "Discuss with stakeholders", "Record decision"},
		},
	}
}

// defaultRule applies when nothing in the table matches.
var defaultRule = Rule{
	Name:      "general",
	Category:  "general",
	Potential: 40,
	Tools:     []string{"ChatGPT", "Zapier"},
	Trigger:   "Task requested",
	Steps:     []string{"Gather inputs", "Process task", "Review result"},
}

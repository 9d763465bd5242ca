package validation

// QuerySchema covers the chat, interaction and medical-chat bodies.
const QuerySchema = `{
  "type": "object",
  "required": ["message"],
  "properties": {
    "message":  {"type": "string", "minLength": 2, "maxLength": 8000},
    "mode":     {"type": "string", "enum": ["", "Student", "Pharmacist", "Patient-Friendly"]},
    "language": {"type": "string", "maxLength": 16}
  }
}`

// ReportSchema covers POST /api/reports/generate.
const ReportSchema = `{
  "type": "object",
  "required": ["topic"],
  "properties": {
    "topic":     {"type": "string", "minLength": 2, "maxLength": 500},
    "disease":   {"type": "string", "maxLength": 500},
    "region":    {"type": "string", "maxLength": 200},
    "timeRange": {"type": "string", "maxLength": 100},
    "language":  {"type": "string", "maxLength": 16},
    "mode":      {"type": "string", "enum": ["", "Student", "Pharmacist", "Patient-Friendly"]}
  }
}`

var (
	QueryValidator  = MustCompile(QuerySchema)
	ReportValidator = MustCompile(ReportSchema)
)

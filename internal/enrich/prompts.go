package enrich

import (
	"fmt"
	"strings"

	"github.com/hyperjump/torikomi/internal/models"
)

const summaryPrompt = `Summarize the following document in 2-4 sentences of plain prose.

Rules:
- State what the document is about and its key points.
- Do not include any preamble, headings, or commentary about the task.
- Do not invent facts that are not in the document.`

const entityResponseSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "properties": {
    "entities": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "name": {"type": "string"},
          "type": {"type": "string"}
        },
        "required": ["name", "type"],
        "additionalProperties": false
      }
    }
  },
  "required": ["entities"],
  "additionalProperties": false
}`

const entityPromptTemplate = `Extract the named entities mentioned in the given document and return them as JSON.

Output ONLY valid JSON which complies with the schema given below. Do not include any preamble, explanation,
greeting, or acknowledgment. Start your response directly with the opening brace { and end with the closing
brace }. Your output must exactly follow this schema:

%s

Rules:
- The type field must be exactly one of: %s.
- Include each distinct entity once, using the most complete form found in the document.
- Include only entities explicitly mentioned in the document. Do not hallucinate.
- If no entities can be identified, return "entities": [].
- The JSON must parse without errors; no trailing commas, no extra keys, and no extraneous text outside the object.

Example:
Input: "Ada Lovelace worked with Charles Babbage in London on the Analytical Engine in 1843."
Output:
{
  "entities": [
    {"name": "Ada Lovelace", "type": "person"},
    {"name": "Charles Babbage", "type": "person"},
    {"name": "London", "type": "place"},
    {"name": "Analytical Engine", "type": "work"},
    {"name": "1843", "type": "date"}
  ]
}`

func buildEntityPrompt() string {
	types := make([]string, 0, len(models.KnownEntityTypes))
	for _, t := range models.KnownEntityTypes {
		types = append(types, string(t))
	}
	return fmt.Sprintf(entityPromptTemplate, entityResponseSchema, strings.Join(types, ", "))
}

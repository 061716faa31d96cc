package mcpserver

// RecordFormatContract describes the records returned by lookout tools and
// the fields accepted by the submission tools.
const RecordFormatContract = `# Lookout Record Format

Every list returned by lookout (own reports, match candidates, sightings)
contains records with the same shape.

## Record

` + "```" + `json
{
  "id": "65f1c0ffee",            // string, never empty
  "kind": "match_candidate",     // own_report | match_candidate | sighting
  "display_name": "Max",         // may be empty
  "description": "brown dog, red collar",
  "image_uri": "https://...",    // may be empty
  "when": "2024-06-15",          // missing-since or creation date, as sent by the backend
  "location": "37.3382, -121.8863",
  "score": 88.89,                // match score, 2 decimals; 0 when not scored
  "contact_phone": "4083938414",
  "status": false,               // found (own_report) or resolved (sighting)
  "source_report_id": "r1"       // match candidates only: the report it was scored against
}
` + "```" + `

## Rules

1. **Ids are stable.** Use ` + "`" + `id` + "`" + ` with ` + "`" + `mark_report_found` + "`" + ` (own reports) or
   ` + "`" + `mark_sighting_resolved` + "`" + ` (sightings). Match candidates cannot be marked.
2. **Duplicates are removed.** A record appears once per list, in first-seen order.
3. **Score tiers:** above 80 is high, above 60 is medium, anything else is low.
4. **Status changes are confirmed.** A record is only shown as found or resolved
   after the backend accepted the change. Repeating the call is harmless.

## Submitting

Missing report (` + "`" + `submit_missing_report` + "`" + `):

- ` + "`" + `type` + "`" + `: ` + "`" + `pet` + "`" + ` or ` + "`" + `person` + "`" + ` (default ` + "`" + `pet` + "`" + `).
- ` + "`" + `full_name` + "`" + `, ` + "`" + `description` + "`" + `, ` + "`" + `phone_number` + "`" + `: required, non-blank.
- ` + "`" + `lat` + "`" + ` / ` + "`" + `lon` + "`" + `: required unless ` + "`" + `use_current_location` + "`" + ` is set.
- ` + "`" + `missing_since` + "`" + `: required, ` + "`" + `YYYY-MM-DD` + "`" + `.
- ` + "`" + `reward` + "`" + `: optional free text.

Sighting (` + "`" + `submit_sighting` + "`" + `): ` + "`" + `type` + "`" + `, ` + "`" + `description` + "`" + `, ` + "`" + `phone_number` + "`" + `, ` + "`" + `lat` + "`" + `/` + "`" + `lon` + "`" + `.

All fields are validated together and every problem is reported at once;
nothing is sent until the form is valid.

## Photos

- Store a photo with ` + "`" + `add_photo` + "`" + ` and pass the returned ` + "`" + `photo_uri` + "`" + ` as ` + "`" + `photo` + "`" + `.
- Supported formats: png, jpg, jpeg, gif, webp. The file content must match the extension.
- When the photo cannot be read because of a permission problem the submission
  goes out without it and the result carries a warning.
`

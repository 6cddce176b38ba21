package entity

import "regexp"

// pattern is one row of the static extraction table: a compiled expression,
// the base confidence assigned to its matches, and the capture group that
// holds the entity text (0 = whole match).
type pattern struct {
	re         *regexp.Regexp
	confidence float64
	group      int
}

// typePatterns binds an entity type to its ordered patterns.
type typePatterns struct {
	typ      Type
	patterns []pattern
}

// patternTable is the full pattern pass policy, ordered by type. Confidence
// is halved later for spans of length <= 2, below which a match is noise.
var patternTable = []typePatterns{
	{TypePerson, []pattern{
		{regexp.MustCompile(`(?:[Mm]y name is|[Cc]all me|[Tt]his is) ([A-Z][a-zA-Z'-]+(?: [A-Z][a-zA-Z'-]+){0,2})`), 0.95, 1},
		{regexp.MustCompile(`(?:[Ii]'m|[Ii] am) ([A-Z][a-zA-Z'-]+(?: [A-Z][a-zA-Z'-]+)?)\b`), 0.8, 1},
	}},
	{TypeOrg, []pattern{
		{regexp.MustCompile(`(?:[Ii] work (?:at|for)|[Ww]orking (?:at|for)|[Ee]mployed (?:at|by)) ([A-Z][\w&.-]*(?: [A-Z][\w&.-]*){0,3})`), 0.9, 1},
		{regexp.MustCompile(`\b([A-Z][\w-]+(?: [A-Z][\w-]+)* (?:Inc|Corp|LLC|Ltd|GmbH|Co)\.?)(?:\s|$|[,;!?])`), 0.85, 1},
	}},
	{TypeProduct, []pattern{
		{regexp.MustCompile(`(?:[Uu]sing|[Ss]witched to|[Bb]ought) ([A-Z][\w-]+(?: [A-Z0-9][\w.-]*){0,2})`), 0.8, 1},
		{regexp.MustCompile(`\b([A-Z][a-zA-Z]+ v?\d+(?:\.\d+)+)\b`), 0.75, 1},
	}},
	{TypeDate, []pattern{
		{regexp.MustCompile(`\b\d{4}-\d{2}-\d{2}\b`), 0.95, 0},
		{regexp.MustCompile(`\b\d{1,2}/\d{1,2}/\d{2,4}\b`), 0.9, 0},
		{regexp.MustCompile(`(?i)\b(?:jan(?:uary)?|feb(?:ruary)?|mar(?:ch)?|apr(?:il)?|may|jun(?:e)?|jul(?:y)?|aug(?:ust)?|sep(?:tember)?|oct(?:ober)?|nov(?:ember)?|dec(?:ember)?) \d{1,2}(?:st|nd|rd|th)?(?:,? \d{4})?\b`), 0.85, 0},
		{regexp.MustCompile(`(?i)\b(?:today|tomorrow|yesterday|(?:next|last) (?:week|month|year|monday|tuesday|wednesday|thursday|friday|saturday|sunday))\b`), 0.7, 0},
	}},
	{TypePreference, []pattern{
		{regexp.MustCompile(`(?i)\bi (?:prefer|like|love|enjoy|always use|usually use|want) ([^,.!?\n]{2,60})`), 0.85, 1},
		{regexp.MustCompile(`(?i)\bplease (?:always|never|don't) ([^,.!?\n]{2,60})`), 0.8, 1},
	}},
	{TypeCorrection, []pattern{
		{regexp.MustCompile(`(?i)\b(?:actually|i meant|i said|to clarify|correction:?)[,:]? ([^.!?\n]{2,80})`), 0.85, 1},
		{regexp.MustCompile(`(?i)\b(?:that's (?:wrong|not right|incorrect)|no, it's) ?([^.!?\n]{0,80})`), 0.8, 0},
	}},
	{TypeLocation, []pattern{
		{regexp.MustCompile(`(?:[Ii] live in|[Ii]'m (?:in|from)|[Bb]ased in|[Ll]ocated in|[Mm]oving to) ([A-Z][a-zA-Z]+(?: [A-Z][a-zA-Z]+){0,2})`), 0.85, 1},
	}},
	{TypeEmail, []pattern{
		{regexp.MustCompile(`\b[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}\b`), 0.9, 0},
	}},
	{TypePhone, []pattern{
		{regexp.MustCompile(`\+?\d[\d ().-]{7,16}\d\b`), 0.75, 0},
	}},
	{TypeProject, []pattern{
		{regexp.MustCompile(`(?:[Pp]roject|[Ii]nitiative|[Cc]odenamed?) ["']?([A-Z][\w-]+(?: [A-Z][\w-]+){0,2})["']?`), 0.85, 1},
	}},
	// Generic fallback: bare multi-word capitalized sequences read as
	// organization names at the minimum useful confidence.
	{TypeOrg, []pattern{
		{regexp.MustCompile(`\b([A-Z][a-z]+(?: [A-Z][a-z]+)+)\b`), 0.7, 1},
	}},
}

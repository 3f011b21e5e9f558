// Package payload normalizes Jellyseerr webhook bodies into a typed issue
// context. Payload shapes vary across Jellyseerr versions and notification
// templates, so extraction is driven by alias tables rather than fixed
// structs: for each logical field a prioritized list of (nesting level, key)
// aliases is searched and the first valid value wins.
package payload

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/remediarr/remediarr/internal/domain"
)

// Season/episode sanity bounds. Values outside these are almost certainly an
// unrelated numeric field (a year, an id) that happened to sit under a
// season-ish key.
const (
	maxSeason  = 50
	maxEpisode = 999
)

// scope names the nesting levels searched for a field alias. An empty scope
// means the top level of the document.
type alias struct {
	scope string
	key   string
}

var (
	issueIDAliases = []alias{
		{"issue", "issue_id"},
		{"issue", "issueId"},
		{"issue", "id"},
		{"", "issue_id"},
	}
	issueTypeAliases = []alias{
		{"issue", "issue_type"},
		{"issue", "issueType"},
	}
	mediaTypeAliases = []alias{
		{"media", "media_type"},
		{"media", "mediaType"},
		{"", "media_type"},
	}
	tmdbAliases = []alias{
		{"media", "tmdbId"},
		{"media", "tmdbid"},
		{"", "tmdbId"},
	}
	tvdbAliases = []alias{
		{"media", "tvdbId"},
		{"media", "tvdbid"},
		{"", "tvdbId"},
	}
	imdbAliases = []alias{
		{"media", "imdbId"},
		{"media", "imdbid"},
	}
	seasonAliases = []alias{
		{"issue", "affected_season"},
		{"issue", "affectedSeason"},
		{"media", "seasonNumber"},
		{"media", "season"},
		{"issue", "seasonNumber"},
		{"issue", "season"},
		{"extra", "affected_season"},
	}
	episodeAliases = []alias{
		{"issue", "affected_episode"},
		{"issue", "affectedEpisode"},
		{"media", "episodeNumber"},
		{"media", "episode"},
		{"issue", "episodeNumber"},
		{"issue", "episode"},
		{"extra", "affected_episode"},
	}
	commentTextAliases = []alias{
		{"comment", "comment_message"},
		{"comment", "commentMessage"},
		{"comment", "message"},
	}
	commentedByAliases = []alias{
		{"comment", "commentedBy_username"},
		{"comment", "commentedBy"},
	}
	reportedByAliases = []alias{
		{"issue", "reportedBy_username"},
		{"issue", "reportedBy"},
	}
)

var (
	seRegex      = regexp.MustCompile(`[Ss](\d{1,3})[Ee](\d{1,3})`)
	seasonRegex  = regexp.MustCompile(`(?i)Season\s+(\d{1,3})`)
	episodeRegex = regexp.MustCompile(`(?i)Episode\s+(\d{1,3})`)
	digitsRegex  = regexp.MustCompile(`\d+`)
)

// Normalize parses a raw webhook body into an IssueContext. The only error
// condition is malformed JSON; missing fields are propagated as nil/empty,
// never defaulted.
func Normalize(raw []byte) (*domain.IssueContext, error) {
	var doc map[string]interface{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("invalid webhook body: %w", err)
	}

	ic := &domain.IssueContext{
		Event:       stringAt(doc, "", "event"),
		Subject:     stringAt(doc, "", "subject"),
		Message:     stringAt(doc, "", "message"),
		IssueType:   findString(doc, issueTypeAliases),
		IMDBID:      findString(doc, imdbAliases),
		CommentText: findString(doc, commentTextAliases),
		CommentedBy: findString(doc, commentedByAliases),
		ReportedBy:  findString(doc, reportedByAliases),
	}

	switch strings.ToLower(findString(doc, mediaTypeAliases)) {
	case "movie":
		ic.MediaType = domain.MediaMovie
	case "tv", "series", "show":
		ic.MediaType = domain.MediaSeries
	}

	ic.IssueID = findInt64(doc, issueIDAliases, 0)
	ic.TMDBID = findInt64(doc, tmdbAliases, 0)
	ic.TVDBID = findInt64(doc, tvdbAliases, 0)
	ic.Season = findInt(doc, seasonAliases, maxSeason)
	ic.Episode = findInt(doc, episodeAliases, maxEpisode)

	// Regex fallback against embedded free text. Jellyseerr templates often
	// carry "S01E02" or "Season 1 Episode 2" in subject/message even when the
	// structured fields were stripped.
	if ic.Season == nil || ic.Episode == nil {
		text := strings.Join([]string{ic.Subject, ic.Message, ic.CommentText, ic.IssueType}, " ")
		s, e := ExtractSeasonEpisodeFromText(text)
		if ic.Season == nil {
			ic.Season = s
		}
		if ic.Episode == nil {
			ic.Episode = e
		}
	}

	return ic, nil
}

// ExtractSeasonEpisodeFromText pulls season/episode numbers out of free text,
// recognizing "S01E02" and "Season 1 ... Episode 2" forms.
func ExtractSeasonEpisodeFromText(text string) (*int, *int) {
	if m := seRegex.FindStringSubmatch(text); m != nil {
		s := mustAtoi(m[1])
		e := mustAtoi(m[2])
		return validSeason(s), validEpisode(e)
	}

	var season, episode *int
	if m := seasonRegex.FindStringSubmatch(text); m != nil {
		season = validSeason(mustAtoi(m[1]))
	}
	if m := episodeRegex.FindStringSubmatch(text); m != nil {
		episode = validEpisode(mustAtoi(m[1]))
	}
	return season, episode
}

// MergeFromIssueDoc fills still-missing season/episode from an issue document
// fetched from the request tracker, which is authoritative over webhook
// hints. The document shape varies across tracker versions, so this does a
// depth-first search for season/episode-looking keys anywhere in the tree.
func MergeFromIssueDoc(ic *domain.IssueContext, doc map[string]interface{}) {
	if ic.Season != nil && ic.Episode != nil {
		return
	}
	s, e := walkForSeasonEpisode(doc)
	if ic.Season == nil {
		ic.Season = s
	}
	if ic.Episode == nil {
		ic.Episode = e
	}
}

// InsufficientContext reports whether the context is too ambiguous to act on:
// unknown media type, a movie without a TMDB id, or a series issue that does
// not pin down a single episode. Under-acting is preferred over acting at the
// wrong scope.
func InsufficientContext(ic *domain.IssueContext) (bool, string) {
	switch ic.MediaType {
	case domain.MediaMovie:
		if ic.TMDBID == nil {
			return true, "movie issue without tmdbId"
		}
	case domain.MediaSeries:
		if ic.TVDBID == nil {
			return true, "series issue without tvdbId"
		}
		if !ic.HasEpisodeScope() {
			return true, "series issue without season/episode"
		}
	default:
		return true, "unknown media type"
	}
	return false, ""
}

// =============================================================================
// Alias-table search
// =============================================================================

// findString returns the first non-empty string value among the aliases.
func findString(doc map[string]interface{}, aliases []alias) string {
	for _, a := range aliases {
		if s := stringAt(doc, a.scope, a.key); s != "" {
			return s
		}
	}
	return ""
}

// findInt64 returns the first coercible value among the aliases, bounded by
// max when max > 0.
func findInt64(doc map[string]interface{}, aliases []alias, max int64) *int64 {
	for _, a := range aliases {
		v, ok := valueAt(doc, a.scope, a.key)
		if !ok {
			continue
		}
		if n, ok := toInt64(v); ok {
			if max > 0 && n > max {
				continue
			}
			return &n
		}
	}
	return nil
}

func findInt(doc map[string]interface{}, aliases []alias, max int64) *int {
	if n := findInt64(doc, aliases, max); n != nil {
		i := int(*n)
		return &i
	}
	return nil
}

func valueAt(doc map[string]interface{}, scope, key string) (interface{}, bool) {
	node := doc
	if scope != "" {
		sub, ok := doc[scope].(map[string]interface{})
		if !ok {
			return nil, false
		}
		node = sub
	}
	v, ok := node[key]
	if !ok || v == nil {
		return nil, false
	}
	return v, true
}

func stringAt(doc map[string]interface{}, scope, key string) string {
	v, ok := valueAt(doc, scope, key)
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return strings.TrimSpace(s)
}

// toInt64 coerces ints, floats, and numeric strings to int64. Booleans and
// un-substituted template placeholders ("{{issue_id}}") are rejected: both
// are real shapes seen in the wild that must not be mistaken for ids.
func toInt64(v interface{}) (int64, bool) {
	switch t := v.(type) {
	case bool:
		return 0, false
	case float64:
		return int64(t), true
	case int64:
		return t, true
	case int:
		return int64(t), true
	case json.Number:
		if n, err := t.Int64(); err == nil {
			return n, true
		}
		return 0, false
	case string:
		s := strings.TrimSpace(t)
		if strings.HasPrefix(s, "{{") && strings.HasSuffix(s, "}}") {
			return 0, false
		}
		if m := digitsRegex.FindString(s); m != "" {
			return int64(mustAtoi(m)), true
		}
		return 0, false
	default:
		return 0, false
	}
}

func mustAtoi(s string) int {
	n := 0
	for _, c := range s {
		n = n*10 + int(c-'0')
	}
	return n
}

func validSeason(n int) *int {
	if n < 0 || n > maxSeason {
		return nil
	}
	return &n
}

func validEpisode(n int) *int {
	if n < 0 || n > maxEpisode {
		return nil
	}
	return &n
}

// =============================================================================
// Deep search over fetched issue documents
// =============================================================================

func keyLooksLike(name, want string) bool {
	n := strings.ToLower(name)
	switch want {
	case "season":
		// "reason" contains "season"
		return strings.Contains(n, "season") && !strings.Contains(n, "reason")
	case "episode":
		return strings.Contains(n, "episode")
	}
	return false
}

// Exact key names tried before falling back to the fuzzy match, most
// specific first.
var (
	seasonKeyPriority  = []string{"affected_season", "affectedSeason", "seasonNumber", "season"}
	episodeKeyPriority = []string{"affected_episode", "affectedEpisode", "episodeNumber", "episode"}
)

func walkForSeasonEpisode(node interface{}) (season, episode *int) {
	season = findExactKey(node, seasonKeyPriority, validSeason)
	episode = findExactKey(node, episodeKeyPriority, validEpisode)
	if season != nil && episode != nil {
		return season, episode
	}

	// Fuzzy fallback for tracker versions using key names the priority
	// list doesn't know. Maps are walked in sorted key order so the
	// result does not depend on map iteration order.
	var walk func(interface{})
	walk = func(n interface{}) {
		if n == nil || (season != nil && episode != nil) {
			return
		}
		switch t := n.(type) {
		case map[string]interface{}:
			for _, k := range sortedKeys(t) {
				v := t[k]
				if season == nil && keyLooksLike(k, "season") {
					if iv, ok := intFromValueOrChild(v); ok {
						season = validSeason(iv)
					}
				}
				if episode == nil && keyLooksLike(k, "episode") {
					if iv, ok := intFromValueOrChild(v); ok {
						episode = validEpisode(iv)
					}
				}
				walk(v)
			}
		case []interface{}:
			for _, it := range t {
				walk(it)
			}
		}
	}
	walk(node)
	return season, episode
}

// findExactKey does a depth-first search for each named key in turn and
// returns the first value the validator accepts. A later key in the list is
// only consulted when no earlier key matched anywhere in the tree.
func findExactKey(node interface{}, keys []string, valid func(int) *int) *int {
	for _, key := range keys {
		if found := searchKey(node, key, valid); found != nil {
			return found
		}
	}
	return nil
}

func searchKey(node interface{}, key string, valid func(int) *int) *int {
	switch t := node.(type) {
	case map[string]interface{}:
		if v, ok := t[key]; ok {
			if iv, ok := intFromValueOrChild(v); ok {
				if found := valid(iv); found != nil {
					return found
				}
			}
		}
		for _, k := range sortedKeys(t) {
			if found := searchKey(t[k], key, valid); found != nil {
				return found
			}
		}
	case []interface{}:
		for _, it := range t {
			if found := searchKey(it, key, valid); found != nil {
				return found
			}
		}
	}
	return nil
}

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// intFromValueOrChild coerces a value, or the first coercible field of an
// object value (e.g. {"seasonNumber": 1} nested under an "affectedSeason" key).
func intFromValueOrChild(v interface{}) (int, bool) {
	if m, ok := v.(map[string]interface{}); ok {
		for _, k := range sortedKeys(m) {
			if n, ok := toInt64(m[k]); ok {
				return int(n), true
			}
		}
		return 0, false
	}
	if n, ok := toInt64(v); ok {
		return int(n), true
	}
	return 0, false
}

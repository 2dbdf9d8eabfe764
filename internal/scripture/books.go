package scripture

import "strings"

// Extra spellings per OSIS code. Full names and OSIS codes are registered
// from the canon table automatically. Two-letter abbreviations that are
// also English words ("is", "am", "he") are left out.
var bookAliases = map[string][]string{
	"Gen":    {"gn"},
	"Exod":   {"ex", "exo", "exd"},
	"Lev":    {"lv"},
	"Num":    {"nm", "nb"},
	"Deut":   {"dt", "deu"},
	"Josh":   {"jos", "jsh"},
	"Judg":   {"jdg", "jg", "jdgs"},
	"Ruth":   {"rth"},
	"1Sam":   {"1sa", "1sm"},
	"2Sam":   {"2sa", "2sm"},
	"1Kgs":   {"1ki", "1kin", "1kings"},
	"2Kgs":   {"2ki", "2kin", "2kings"},
	"1Chr":   {"1ch", "1chron"},
	"2Chr":   {"2ch", "2chron"},
	"Ezra":   {"ezr"},
	"Esth":   {"est"},
	"Job":    {"jb"},
	"Ps":     {"psa", "psalm", "pss", "psm"},
	"Prov":   {"pro", "prv", "pr"},
	"Eccl":   {"ecc", "ec", "eccles", "qoh"},
	"Song":   {"songofsongs", "sos", "canticles", "cant"},
	"Jer":    {"jr"},
	"Ezek":   {"eze", "ezk"},
	"Dan":    {"dn"},
	"Joel":   {"jl"},
	"Obad":   {"oba"},
	"Jonah":  {"jnh", "jon"},
	"Mic":    {"mc"},
	"Hab":    {"hb"},
	"Zeph":   {"zep", "zp"},
	"Hag":    {"hg"},
	"Zech":   {"zec", "zc"},
	"Mal":    {"ml"},
	"Matt":   {"mt", "mat"},
	"Mark":   {"mk", "mrk", "mr"},
	"Luke":   {"lk", "luk"},
	"John":   {"jn", "jhn", "joh"},
	"Acts":   {"act"},
	"Rom":    {"rm"},
	"1Cor":   {"1co"},
	"2Cor":   {"2co"},
	"Eph":    {"ephes"},
	"Phil":   {"php", "pp"},
	"1Thess": {"1th", "1thes"},
	"2Thess": {"2th", "2thes"},
	"1Tim":   {"1ti", "1tm"},
	"2Tim":   {"2ti", "2tm"},
	"Titus":  {"tit"},
	"Phlm":   {"philem", "phm"},
	"Jas":    {"jm", "jam", "jms"},
	"1Pet":   {"1pe", "1pt", "1p"},
	"2Pet":   {"2pe", "2pt", "2p"},
	"1John":  {"1jn", "1jhn", "1jo"},
	"2John":  {"2jn", "2jhn", "2jo"},
	"3John":  {"3jn", "3jhn", "3jo"},
	"Jude":   {"jud", "jd"},
	"Rev":    {"rv", "apocalypse", "revelations"},
}

var aliasToCode map[string]string

func init() {
	aliasToCode = make(map[string]string, 512)
	for _, b := range canon {
		aliasToCode[normalizeBookName(b.Name)] = b.OSIS
		aliasToCode[normalizeBookName(b.OSIS)] = b.OSIS
	}
	for code, names := range bookAliases {
		for _, n := range names {
			aliasToCode[normalizeBookName(n)] = code
		}
	}
}

var ordinalPrefixes = []struct{ word, digit string }{
	{"iii ", "3"}, {"ii ", "2"}, {"i ", "1"},
	{"first ", "1"}, {"second ", "2"}, {"third ", "3"},
}

// normalizeBookName lowercases a book name and folds away spaces, periods
// and leading ordinal words ("II Kings" -> "2kings").
func normalizeBookName(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	name = strings.Join(strings.Fields(name), " ")
	for _, p := range ordinalPrefixes {
		if strings.HasPrefix(name, p.word) {
			name = p.digit + name[len(p.word):]
			break
		}
	}
	name = strings.ReplaceAll(name, ".", "")
	return strings.ReplaceAll(name, " ", "")
}

// LookupBook resolves a human book name or abbreviation to its OSIS code.
func LookupBook(name string) (string, bool) {
	code, ok := aliasToCode[normalizeBookName(name)]
	return code, ok
}

package calls

import (
	"regexp"
	"strings"
)

// E.123 groupings for the Nordic and UK numbers the switchboard sees.
var phoneGroupings = []struct {
	re     *regexp.Regexp
	groups []int
}{
	{regexp.MustCompile(`^447\d{9}$`), []int{2, 4, 3, 3}},
	{regexp.MustCompile(`^45\d{8}$`), []int{2, 2, 2, 2, 2}},
	{regexp.MustCompile(`^468\d{6}$`), []int{2, 1, 2, 2, 2}},
	{regexp.MustCompile(`^468\d{7}$`), []int{2, 1, 3, 2, 2}},
	{regexp.MustCompile(`^468\d{8}$`), []int{2, 1, 3, 3, 1}},
	{regexp.MustCompile(`^46[012345679]\d{8}$`), []int{2, 2, 3, 2, 2}},
	{regexp.MustCompile(`^46[123456790]\d{6}$`), []int{2, 2, 3, 2}},
	{regexp.MustCompile(`^475[89]\d{10}$`), []int{2, 4, 4, 4}},
	{regexp.MustCompile(`^47[123567]\d{7}$`), []int{2, 2, 2, 2, 2}},
	{regexp.MustCompile(`^47[489]\d{7}$`), []int{2, 3, 2, 3}},
}

// PrettyPhone formats a number given as digits with country code, grouped
// with sep. Unknown shapes are returned as "+" followed by the digits.
func PrettyPhone(number, sep string) string {
	number = strings.TrimPrefix(number, "+")
	for _, g := range phoneGroupings {
		if g.re.MatchString(number) {
			return "+" + separateGroups(number, g.groups, sep)
		}
	}
	return "+" + number
}

func separateGroups(value string, groups []int, sep string) string {
	total := 0
	for _, n := range groups {
		total += n
	}
	if len(value) != total {
		return value
	}
	parts := make([]string, 0, len(groups))
	start := 0
	for _, n := range groups {
		parts = append(parts, value[start:start+n])
		start += n
	}
	return strings.Join(parts, sep)
}

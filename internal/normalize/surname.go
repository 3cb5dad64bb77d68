package normalize

import (
	"strings"
)

// minVariantLen filters out degenerate surname variants; nothing shorter
// than three letters is worth searching an index for.
const minVariantLen = 3

// SurnameVariants generates plausible spelling variants of a surname using
// mechanical transforms observed across civil registration indices:
//
//	mac <-> mc     (Macdonald / Mcdonald)
//	trailing e     (Clark / Clarke)
//	son <-> sen    (Johnson / Johnsen)
//	y <-> ey       (Hardy / Hardey)
//	th <-> t       (Smith / Smit)
//	ph <-> f       (Phillips / Fillips)
//	oo <-> ou      (Moore / Moure)
//
// Variants are lowercase, deduplicated, never include the input itself, and
// anything shorter than three letters is dropped. Order is deterministic.
func SurnameVariants(surname string) []string {
	base := strings.ToLower(strings.TrimSpace(surname))
	if base == "" {
		return nil
	}

	var variants []string

	add := func(v string) {
		if len(v) < minVariantLen || v == base {
			return
		}

		for _, existing := range variants {
			if existing == v {
				return
			}
		}

		variants = append(variants, v)
	}

	// mac <-> mc prefix swap
	switch {
	case strings.HasPrefix(base, "mac"):
		add("mc" + base[3:])
	case strings.HasPrefix(base, "mc"):
		add("mac" + base[2:])
	}

	// trailing e
	if strings.HasSuffix(base, "e") {
		add(strings.TrimSuffix(base, "e"))
	} else {
		add(base + "e")
	}

	// son <-> sen suffix swap
	switch {
	case strings.HasSuffix(base, "son"):
		add(strings.TrimSuffix(base, "son") + "sen")
	case strings.HasSuffix(base, "sen"):
		add(strings.TrimSuffix(base, "sen") + "son")
	}

	// y <-> ey suffix swap; "ey" must win over the bare "y" check
	switch {
	case strings.HasSuffix(base, "ey"):
		add(strings.TrimSuffix(base, "ey") + "y")
	case strings.HasSuffix(base, "y"):
		add(strings.TrimSuffix(base, "y") + "ey")
	}

	// th <-> t consonant softening
	switch {
	case strings.Contains(base, "th"):
		add(strings.Replace(base, "th", "t", 1))
	case strings.HasSuffix(base, "t"):
		add(strings.TrimSuffix(base, "t") + "th")
	}

	// ph <-> f
	switch {
	case strings.Contains(base, "ph"):
		add(strings.Replace(base, "ph", "f", 1))
	case strings.Contains(base, "f"):
		add(strings.Replace(base, "f", "ph", 1))
	}

	// oo <-> ou vowel shift
	switch {
	case strings.Contains(base, "oo"):
		add(strings.Replace(base, "oo", "ou", 1))
	case strings.Contains(base, "ou"):
		add(strings.Replace(base, "ou", "oo", 1))
	}

	return variants
}

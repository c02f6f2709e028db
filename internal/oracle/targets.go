package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"go.uber.org/zap"
)

// fallbackTargets backs the guarantee that Targets always returns the
// requested count even when the model is down or keeps repeating itself.
var fallbackTargets = []string{
	"mysterious sunset on the sea",
	"ancient stone temple",
	"neon city skyline",
	"lonely lighthouse at dusk",
	"hidden garden behind ruins",
	"foggy mountain pass",
	"busy street market",
	"small spacecraft cockpit",
	"old wooden bridge",
	"abandoned carnival",
}

const maxTargetWords = 12

// Targets returns exactly count unique phrases, none of which appear in
// exclude (case-insensitive). Model output is filtered and topped up from the
// built-in pool, so the call cannot fail or come up short for any count up to
// the pool size.
func (c *Client) Targets(ctx context.Context, count int, exclude []string) []string {
	if count < 1 {
		count = 1
	}
	if count > 10 {
		count = 10
	}

	excluded := make(map[string]bool, len(exclude))
	for _, e := range exclude {
		excluded[strings.ToLower(strings.TrimSpace(e))] = true
	}

	seen := make(map[string]bool)
	var targets []string

	raw, err := c.generate(ctx, targetPrompt(count))
	if err != nil {
		c.log.Warn("target generation unavailable, using fallback pool", zap.Error(err))
	} else {
		for _, cand := range parseTargetList(raw) {
			low := strings.ToLower(cand)
			if seen[low] || excluded[low] {
				continue
			}
			seen[low] = true
			targets = append(targets, cand)
			if len(targets) == count {
				break
			}
		}
	}

	for _, f := range fallbackTargets {
		if len(targets) == count {
			break
		}
		low := strings.ToLower(f)
		if seen[low] || excluded[low] {
			continue
		}
		seen[low] = true
		targets = append(targets, f)
	}

	return targets
}

func targetPrompt(count int) string {
	// The seed nudges the model away from returning the same list every call.
	seed := fmt.Sprintf("%d-%d", time.Now().UnixMilli(), rand.Intn(10000))
	return fmt.Sprintf(`You are an assistant that generates short, game-friendly target phrases.
Targets will be used in a 2-player prompt-guessing duel. Each target must be:
- Concrete and visual (objects, scenes, or short concepts people recognize).
- Guessable: common or easily describable (avoid extremely obscure references).
- Concise: 2 to 6 words, typically noun phrases or short scene descriptions.
- Not proper names, brands, or copyrighted characters.
- Not instructions, questions, or sentences, just short phrases.
- Do NOT include code fences, explanation, or extra text.

Give EXACTLY %d UNIQUE targets as a JSON array of strings and nothing else.
Examples of valid targets: ["deserted island", "haunted library", "robot chef", "stormy ocean"].
Seed: %s`, count, seed)
}

// parseTargetList extracts candidate phrases from model output: a JSON array
// if one can be found, otherwise line/comma splitting.
func parseTargetList(raw string) []string {
	raw = stripFences(raw)

	if start, end := strings.Index(raw, "["), strings.LastIndex(raw, "]"); start >= 0 && end > start {
		var arr []string
		if err := json.Unmarshal([]byte(raw[start:end+1]), &arr); err == nil {
			return cleanTargets(arr)
		}
	}

	split := strings.FieldsFunc(raw, func(r rune) bool { return r == '\n' || r == ',' })
	return cleanTargets(split)
}

func cleanTargets(candidates []string) []string {
	var out []string
	for _, cand := range candidates {
		cand = strings.Trim(strings.TrimSpace(cand), `"'`)
		cand = strings.Trim(cand, " -:")
		if cand == "" {
			continue
		}
		if words := len(strings.Fields(cand)); words < 1 || words > maxTargetWords {
			continue
		}
		out = append(out, cand)
	}
	return out
}

func stripFences(s string) string {
	s = strings.ReplaceAll(s, "```json", "")
	s = strings.ReplaceAll(s, "```", "")
	return strings.TrimSpace(s)
}

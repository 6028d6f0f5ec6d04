// Package doctor runs workspace diagnostics: a list of independent
// integrity checks plus guarded repairs for the fixable subset.
package doctor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/cuedeck/cue/internal/card"
	"github.com/cuedeck/cue/internal/config"
	"github.com/cuedeck/cue/internal/engine"
)

// Status is a check's outcome.
type Status string

const (
	StatusPass Status = "pass"
	StatusWarn Status = "warn"
	StatusFail Status = "fail"
)

// HealthCheck is a single diagnostic result.
type HealthCheck struct {
	Name    string
	Status  Status
	Message string
	Details []string
	Fixable bool
}

// Report is the overall diagnostic outcome.
type Report struct {
	Healthy bool
	Checks  []HealthCheck
}

// Run executes every required check independently; a failure in one never
// prevents the others from running.
func Run(e *engine.Engine) Report {
	checks := []HealthCheck{
		checkConfig(e.WorkspaceRoot),
		checkWorkspaceStructure(e.WorkspaceRoot),
		checkFrontmatter(e),
		checkLinkIntegrity(e),
		checkMetadataConsistency(e),
		checkTaskGraph(e),
		checkConsistency(e),
	}

	healthy := true
	for _, c := range checks {
		if c.Status == StatusFail {
			healthy = false
		}
	}
	return Report{Healthy: healthy, Checks: checks}
}

func checkConfig(root string) HealthCheck {
	path := filepath.Join(root, ".cuedeck", "config.toml")
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return HealthCheck{Name: "config", Status: StatusWarn, Message: "config.toml missing, defaults in use", Fixable: true}
	}
	if _, err := config.Load(root); err != nil {
		return HealthCheck{Name: "config", Status: StatusFail, Message: err.Error(), Fixable: true}
	}
	return HealthCheck{Name: "config", Status: StatusPass, Message: "config.toml is valid"}
}

func checkWorkspaceStructure(root string) HealthCheck {
	var missing []string
	for _, dir := range []string{".cuedeck", filepath.Join(".cuedeck", "cards")} {
		if _, err := os.Stat(filepath.Join(root, dir)); os.IsNotExist(err) {
			missing = append(missing, dir)
		}
	}
	if len(missing) > 0 {
		return HealthCheck{Name: "workspace_structure", Status: StatusFail, Message: "missing directories", Details: missing, Fixable: true}
	}
	return HealthCheck{Name: "workspace_structure", Status: StatusPass, Message: "workspace layout present"}
}

func checkFrontmatter(e *engine.Engine) HealthCheck {
	var bad []string
	for _, d := range e.Documents() {
		if d.Frontmatter == nil {
			bad = append(bad, d.Path)
		}
	}
	if len(bad) > 0 {
		return HealthCheck{Name: "frontmatter", Status: StatusWarn, Message: "some cards have no parsable front-matter", Details: bad}
	}
	return HealthCheck{Name: "frontmatter", Status: StatusPass, Message: "all front-matter parses"}
}

var (
	mdLinkRE   = regexp.MustCompile(`\[[^\]]*\]\(([^)]+)\)`)
	fenceRE    = regexp.MustCompile("(?m)^```.*$")
	externalRE = regexp.MustCompile(`^(https?|mailto|ftp|file)://|^mailto:`)
)

func checkLinkIntegrity(e *engine.Engine) HealthCheck {
	docs := e.Documents()
	byPath := make(map[string]bool, len(docs))
	for _, d := range docs {
		byPath[d.Path] = true
	}

	var broken []string
	for _, d := range docs {
		abs := filepath.Join(e.WorkspaceRoot, d.Path)
		raw, err := os.ReadFile(abs)
		if err != nil {
			continue
		}
		body := stripFencedBlocks(string(raw))
		for _, m := range mdLinkRE.FindAllStringSubmatch(body, -1) {
			target := strings.TrimSpace(m[1])
			if externalRE.MatchString(target) {
				continue
			}
			resolved := resolveRelative(d.Path, target)
			if !byPath[resolved] {
				broken = append(broken, fmt.Sprintf("%s -> %s", d.Path, target))
			}
		}
	}
	if len(broken) > 0 {
		return HealthCheck{Name: "link_integrity", Status: StatusWarn, Message: "unresolved internal links", Details: broken}
	}
	return HealthCheck{Name: "link_integrity", Status: StatusPass, Message: "all internal links resolve"}
}

func stripFencedBlocks(s string) string {
	lines := strings.Split(s, "\n")
	var out []string
	inFence := false
	for _, l := range lines {
		if fenceRE.MatchString(l) {
			inFence = !inFence
			continue
		}
		if !inFence {
			out = append(out, l)
		}
	}
	return strings.Join(out, "\n")
}

func resolveRelative(src, target string) string {
	if strings.HasPrefix(target, "./") || strings.HasPrefix(target, "../") {
		return filepath.ToSlash(filepath.Clean(filepath.Join(filepath.Dir(src), target)))
	}
	return target
}

func checkMetadataConsistency(e *engine.Engine) HealthCheck {
	var warnings []string
	status := StatusPass

	tagCounts := make(map[string]int)
	for _, d := range e.Documents() {
		if d.Frontmatter == nil {
			continue
		}
		for _, t := range d.Frontmatter.Tags {
			tagCounts[strings.ToLower(t)]++
		}
	}

	for _, d := range e.Documents() {
		fm := d.Frontmatter
		if fm == nil {
			continue
		}
		if fm.Priority != "" {
			if _, ok := card.RecognizedPriorities[strings.ToLower(fm.Priority)]; !ok {
				warnings = append(warnings, fmt.Sprintf("%s: unrecognized priority %q", d.Path, fm.Priority))
				status = StatusWarn
			}
		}
		for _, ts := range []struct{ label, val string }{{"created", fm.Created}, {"updated", fm.Updated}} {
			if ts.val == "" {
				continue
			}
			if _, err := time.Parse(time.RFC3339, ts.val); err != nil {
				warnings = append(warnings, fmt.Sprintf("%s: %s timestamp %q is not RFC-3339", d.Path, ts.label, ts.val))
				status = StatusWarn
			}
		}
		for _, t := range fm.Tags {
			if tagCounts[strings.ToLower(t)] < 2 {
				warnings = append(warnings, fmt.Sprintf("%s: rare tag %q", d.Path, t))
				status = StatusWarn
			}
		}
		if isActiveStatus(fm.Status) {
			if created, err := time.Parse(time.RFC3339, fm.Created); err == nil {
				if time.Since(created) > engine.StaleTaskThreshold {
					warnings = append(warnings, fmt.Sprintf("%s: stale %s task (age > 90d)", d.Path, fm.Status))
					status = StatusWarn
				}
			}
		}
	}

	msg := "metadata is consistent"
	if status != StatusPass {
		msg = "metadata issues found"
	}
	return HealthCheck{Name: "metadata_consistency", Status: status, Message: msg, Details: warnings, Fixable: true}
}

func isActiveStatus(s string) bool {
	s = strings.ToLower(s)
	return s == "active" || s == "in-progress" || s == "in_progress"
}

func checkTaskGraph(e *engine.Engine) HealthCheck {
	var issues []string
	status := StatusPass

	if err := e.TaskGraph().ValidateDependencies(); err != nil {
		issues = append(issues, err.Error())
		status = StatusFail
	}
	for _, orphan := range e.TaskGraph().Orphans() {
		issues = append(issues, fmt.Sprintf("orphaned task: %s", orphan))
		if status == StatusPass {
			status = StatusWarn
		}
	}
	for _, err := range e.CheckMissingDependencies() {
		issues = append(issues, err.Error())
		status = StatusFail
	}

	msg := "task graph is consistent"
	if status != StatusPass {
		msg = "task graph issues found"
	}
	return HealthCheck{Name: "task_graph", Status: status, Message: msg, Details: issues}
}

// checkConsistency compares the cache's document count against the
// metadata store's row count. The two are written together by the engine,
// so a mismatch means one of them drifted.
func checkConsistency(e *engine.Engine) HealthCheck {
	if e.Store() == nil {
		return HealthCheck{Name: "consistency", Status: StatusPass, Message: "metadata store not enabled"}
	}
	cacheCount := len(e.Documents())
	rows, err := e.Store().GetAllFiles(context.Background())
	if err != nil {
		return HealthCheck{Name: "consistency", Status: StatusFail, Message: err.Error()}
	}
	if len(rows) != cacheCount {
		return HealthCheck{
			Name:    "consistency",
			Status:  StatusWarn,
			Message: fmt.Sprintf("cache has %d documents, metadata store has %d rows", cacheCount, len(rows)),
		}
	}
	return HealthCheck{Name: "consistency", Status: StatusPass, Message: "cache and metadata store agree"}
}

// RunRepairs dispatches by check.Name, attempting only fixable, non-pass
// items.
func RunRepairs(root string, report Report, normalizeTags bool) []string {
	var applied []string
	for _, c := range report.Checks {
		if !c.Fixable || c.Status == StatusPass {
			continue
		}
		switch c.Name {
		case "config":
			if err := config.Write(root, config.Default()); err == nil {
				applied = append(applied, "wrote default config.toml")
			}
		case "workspace_structure":
			for _, dir := range []string{".cuedeck", filepath.Join(".cuedeck", "cards")} {
				if err := os.MkdirAll(filepath.Join(root, dir), 0o755); err == nil {
					applied = append(applied, "created "+dir)
				}
			}
		case "metadata_consistency":
			n := repairMetadata(root, normalizeTags)
			if n > 0 {
				applied = append(applied, fmt.Sprintf("repaired %d card(s)", n))
			}
		}
	}
	sort.Strings(applied)
	return applied
}

var fencedFrontmatterRE = regexp.MustCompile(`(?s)^---\r?\n(.*?)\r?\n---\r?\n?`)

// repairMetadata normalises timestamps to RFC-3339 and, if normalizeTags,
// lowercases every tag; bodies are preserved byte-for-byte.
func repairMetadata(root string, normalizeTags bool) int {
	dir := filepath.Join(root, ".cuedeck", "cards")
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0
	}

	repaired := 0
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".md") {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		raw, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		loc := fencedFrontmatterRE.FindSubmatchIndex(raw)
		if loc == nil {
			continue
		}
		fm := raw[loc[2]:loc[3]]
		body := raw[loc[1]:]

		var node yaml.Node
		if err := yaml.Unmarshal(fm, &node); err != nil || len(node.Content) == 0 {
			continue
		}
		mapping := node.Content[0]
		changed := false
		for i := 0; i+1 < len(mapping.Content); i += 2 {
			key := mapping.Content[i].Value
			val := mapping.Content[i+1]
			switch key {
			case "created", "updated":
				if norm, ok := normalizeTimestamp(val.Value); ok && norm != val.Value {
					val.SetString(norm)
					changed = true
				}
			case "tags":
				if normalizeTags {
					for _, tagNode := range val.Content {
						lower := strings.ToLower(tagNode.Value)
						if lower != tagNode.Value {
							tagNode.SetString(lower)
							changed = true
						}
					}
				}
			}
		}
		if !changed {
			continue
		}

		var out strings.Builder
		enc := yaml.NewEncoder(&out)
		enc.SetIndent(2)
		if err := enc.Encode(&node); err != nil {
			continue
		}
		enc.Close()

		newContent := "---\n" + out.String() + "---\n" + string(body)
		if err := os.WriteFile(path, []byte(newContent), 0o644); err == nil {
			repaired++
		}
	}
	return repaired
}

// normalizeTimestamp converts YYYY-MM-DD, "YYYY-MM-DD HH:MM:SS",
// "YYYY/MM/DD HH:MM:SS", or Unix seconds into RFC-3339.
func normalizeTimestamp(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if _, err := time.Parse(time.RFC3339, raw); err == nil {
		return raw, true
	}
	layouts := []string{"2006-01-02", "2006-01-02 15:04:05", "2006/01/02 15:04:05"}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC().Format(time.RFC3339), true
		}
	}
	if secs, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return time.Unix(secs, 0).UTC().Format(time.RFC3339), true
	}
	return "", false
}

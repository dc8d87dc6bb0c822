package diff

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	filesChangedRe = regexp.MustCompile(`(\d+)\s+files?\s+changed`)
	insertionsRe   = regexp.MustCompile(`(\d+)\s+insertions?\(\+\)`)
	deletionsRe    = regexp.MustCompile(`(\d+)\s+deletions?\(-\)`)
	hunkHeaderRe   = regexp.MustCompile(`^@@ -(\d+)(?:,(\d+))? \+(\d+)(?:,(\d+))? @@`)
	renameBraceRe  = regexp.MustCompile(`\{([^}]*)\s+=>\s+([^}]*)\}`)
)

// parseShortstat parses git diff --shortstat output, e.g.
// " 5 files changed, 120 insertions(+), 45 deletions(-)".
func parseShortstat(output string) *Stats {
	stats := &Stats{}
	output = strings.TrimSpace(output)
	if output == "" {
		return stats
	}
	if m := filesChangedRe.FindStringSubmatch(output); len(m) > 1 {
		stats.FilesChanged, _ = strconv.Atoi(m[1])
	}
	if m := insertionsRe.FindStringSubmatch(output); len(m) > 1 {
		stats.Additions, _ = strconv.Atoi(m[1])
	}
	if m := deletionsRe.FindStringSubmatch(output); len(m) > 1 {
		stats.Deletions, _ = strconv.Atoi(m[1])
	}
	return stats
}

// parseNumstat parses git diff --numstat output. Each line is
// additions<tab>deletions<tab>path; binary files show "-" counts.
func parseNumstat(output string) []FileDiff {
	var files []FileDiff
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		parts := strings.Split(line, "\t")
		if len(parts) < 3 {
			continue
		}

		path := parts[2]
		// Renames arrive as "old => new" or "dir/{old => new}/file".
		if strings.Contains(path, " => ") {
			path = resolveRenamePath(path)
		}

		binary := parts[0] == "-" && parts[1] == "-"
		var additions, deletions int
		if !binary {
			additions, _ = strconv.Atoi(parts[0])
			deletions, _ = strconv.Atoi(parts[1])
		}

		files = append(files, FileDiff{
			Path:      path,
			Status:    "modified",
			Additions: additions,
			Deletions: deletions,
			Binary:    binary,
		})
	}
	return files
}

// resolveRenamePath extracts the new path from git rename notation:
// "old.txt => new.txt" or "dir/{old => new}/file.txt".
func resolveRenamePath(path string) string {
	if m := renameBraceRe.FindStringSubmatch(path); len(m) == 3 {
		resolved := renameBraceRe.ReplaceAllString(path, m[2])
		return strings.ReplaceAll(resolved, "//", "/")
	}
	if parts := strings.Split(path, " => "); len(parts) == 2 {
		return strings.TrimSpace(parts[1])
	}
	return path
}

// applyNameStatus overlays git diff --name-status classifications onto the
// numstat-derived file list.
func applyNameStatus(files []FileDiff, output string) {
	type fileStatus struct {
		status  string
		oldPath string
	}
	byPath := make(map[string]fileStatus)

	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		parts := strings.Fields(line)
		if len(parts) < 2 {
			continue
		}

		code, path, oldPath := parts[0], parts[1], ""
		var status string
		switch {
		case code == "A":
			status = "added"
		case code == "D":
			status = "deleted"
		case code == "M":
			status = "modified"
		case strings.HasPrefix(code, "R"):
			status = "renamed"
			if len(parts) >= 3 {
				oldPath, path = parts[1], parts[2]
			}
		case strings.HasPrefix(code, "C"):
			status = "copied"
			if len(parts) >= 3 {
				oldPath, path = parts[1], parts[2]
			}
		default:
			status = "modified"
		}
		byPath[path] = fileStatus{status: status, oldPath: oldPath}
	}

	for i := range files {
		if fs, ok := byPath[files[i].Path]; ok {
			files[i].Status = fs.status
			files[i].OldPath = fs.oldPath
		}
	}
}

// parseUnified parses unified diff output for a single file into hunks.
func parseUnified(output, filePath string) *FileDiff {
	fd := &FileDiff{
		Path:   filePath,
		Status: "modified",
		Hunks:  []Hunk{},
	}

	var hunk *Hunk
	var oldLine, newLine int

	flush := func() {
		if hunk != nil {
			fd.Hunks = append(fd.Hunks, *hunk)
			hunk = nil
		}
	}

	for _, line := range strings.Split(output, "\n") {
		if strings.HasPrefix(line, "Binary files") {
			fd.Binary = true
			continue
		}

		if m := hunkHeaderRe.FindStringSubmatch(line); m != nil {
			flush()
			oldStart, _ := strconv.Atoi(m[1])
			newStart, _ := strconv.Atoi(m[3])
			oldCount, newCount := 1, 1
			if m[2] != "" {
				oldCount, _ = strconv.Atoi(m[2])
			}
			if m[4] != "" {
				newCount, _ = strconv.Atoi(m[4])
			}
			hunk = &Hunk{
				OldStart: oldStart,
				OldLines: oldCount,
				NewStart: newStart,
				NewLines: newCount,
				Lines:    []Line{},
			}
			oldLine, newLine = oldStart, newStart
			continue
		}

		if hunk == nil {
			continue
		}

		switch {
		case strings.HasPrefix(line, "+") && !strings.HasPrefix(line, "+++"):
			hunk.Lines = append(hunk.Lines, Line{
				Type:    "addition",
				Content: line[1:],
				NewLine: newLine,
			})
			fd.Additions++
			newLine++
		case strings.HasPrefix(line, "-") && !strings.HasPrefix(line, "---"):
			hunk.Lines = append(hunk.Lines, Line{
				Type:    "deletion",
				Content: line[1:],
				OldLine: oldLine,
			})
			fd.Deletions++
			oldLine++
		case strings.HasPrefix(line, " "):
			hunk.Lines = append(hunk.Lines, Line{
				Type:    "context",
				Content: line[1:],
				OldLine: oldLine,
				NewLine: newLine,
			})
			oldLine++
			newLine++
		}
	}
	flush()

	return fd
}

package git

import (
	"strconv"
	"strings"
	"time"

	"github.com/hugo-lorenzo-mato/gitmcp/internal/core"
)

// Field separators used in --format strings. Unit/record separators never
// appear in refs, author names, or subjects, so splitting on them is safe.
const (
	fieldSep  = "\x1f"
	recordSep = "\x1e"
)

// logFormat produces one record per commit, fields joined by fieldSep.
const logFormat = "%H" + fieldSep + "%an" + fieldSep + "%ae" + fieldSep + "%aI" + fieldSep + "%s" + fieldSep + "%b" + recordSep

// parseStatusV2 interprets `git status --porcelain=v2 --branch` output.
func parseStatusV2(out string) *core.StatusResult {
	st := &core.StatusResult{
		Staged:    []core.FileChange{},
		Unstaged:  []core.FileChange{},
		Untracked: []string{},
	}
	for _, line := range strings.Split(out, "\n") {
		switch {
		case strings.HasPrefix(line, "# branch.oid "):
			if oid := strings.TrimPrefix(line, "# branch.oid "); oid != "(initial)" {
				st.Commit = oid
			}
		case strings.HasPrefix(line, "# branch.head "):
			if head := strings.TrimPrefix(line, "# branch.head "); head != "(detached)" {
				st.Branch = head
			}
		case strings.HasPrefix(line, "# branch.ab "):
			parts := strings.Fields(line)
			if len(parts) >= 4 {
				st.Ahead, _ = strconv.Atoi(strings.TrimPrefix(parts[2], "+"))
				st.Behind, _ = strconv.Atoi(strings.TrimPrefix(parts[3], "-"))
			}
		case strings.HasPrefix(line, "1 "):
			fields := strings.SplitN(line, " ", 9)
			if len(fields) == 9 {
				addChange(st, fields[1], fields[8])
			}
		case strings.HasPrefix(line, "2 "):
			// Renames carry "newPath\toldPath" in the final field.
			fields := strings.SplitN(line, " ", 10)
			if len(fields) == 10 {
				path := fields[9]
				if i := strings.IndexByte(path, '\t'); i >= 0 {
					path = path[:i]
				}
				addChange(st, fields[1], path)
			}
		case strings.HasPrefix(line, "u "):
			fields := strings.SplitN(line, " ", 11)
			if len(fields) == 11 {
				st.Conflicts = append(st.Conflicts, fields[10])
			}
		case strings.HasPrefix(line, "? "):
			st.Untracked = append(st.Untracked, strings.TrimPrefix(line, "? "))
		}
	}
	st.Clean = len(st.Staged) == 0 && len(st.Unstaged) == 0 &&
		len(st.Untracked) == 0 && len(st.Conflicts) == 0
	return st
}

// addChange files the XY pair of one porcelain entry into staged and
// unstaged buckets. '.' means no change on that side.
func addChange(st *core.StatusResult, xy, path string) {
	if len(xy) != 2 {
		return
	}
	if xy[0] != '.' {
		st.Staged = append(st.Staged, core.FileChange{Path: path, Status: string(xy[0])})
	}
	if xy[1] != '.' {
		st.Unstaged = append(st.Unstaged, core.FileChange{Path: path, Status: string(xy[1])})
	}
}

// parseLog splits formatted history into commit records.
func parseLog(out string) []core.CommitInfo {
	var commits []core.CommitInfo
	for _, record := range strings.Split(out, recordSep) {
		record = strings.TrimLeft(record, "\n")
		fields := strings.SplitN(record, fieldSep, 6)
		if len(fields) < 6 || fields[0] == "" {
			continue
		}
		date, _ := time.Parse(time.RFC3339, fields[3])
		commits = append(commits, core.CommitInfo{
			Commit:      fields[0],
			AuthorName:  fields[1],
			AuthorEmail: fields[2],
			Date:        date,
			Subject:     fields[4],
			Body:        strings.TrimSpace(fields[5]),
		})
	}
	return commits
}

// parseShortStat reads "N files changed, M insertions(+), K deletions(-)".
// Any of the three sections may be absent.
func parseShortStat(out string) (files, insertions, deletions int) {
	for _, part := range strings.Split(strings.TrimSpace(out), ",") {
		fields := strings.Fields(part)
		if len(fields) < 2 {
			continue
		}
		n, err := strconv.Atoi(fields[0])
		if err != nil {
			continue
		}
		switch {
		case strings.HasPrefix(fields[1], "file"):
			files = n
		case strings.HasPrefix(fields[1], "insertion"):
			insertions = n
		case strings.HasPrefix(fields[1], "deletion"):
			deletions = n
		}
	}
	return files, insertions, deletions
}

// parseNumstat reads `git diff --numstat` lines: "ins\tdel\tpath" with
// "-" for binary files.
func parseNumstat(out string) []core.FileDiff {
	var files []core.FileDiff
	for _, line := range strings.Split(out, "\n") {
		fields := strings.SplitN(line, "\t", 3)
		if len(fields) != 3 {
			continue
		}
		ins, _ := strconv.Atoi(fields[0])
		del, _ := strconv.Atoi(fields[1])
		files = append(files, core.FileDiff{
			Path:       fields[2],
			Insertions: ins,
			Deletions:  del,
		})
	}
	return files
}

// parseNameStatus reads `git diff --name-status` into path→status. Rename
// entries ("R100\told\tnew") file under the new path.
func parseNameStatus(out string) map[string]string {
	statuses := make(map[string]string)
	for _, line := range strings.Split(out, "\n") {
		fields := strings.Split(line, "\t")
		if len(fields) < 2 || fields[0] == "" {
			continue
		}
		status := fields[0][:1]
		path := fields[len(fields)-1]
		statuses[path] = status
	}
	return statuses
}

// branchFormat produces "name\tsha\thead-marker\tupstream" per ref.
const branchFormat = "%(refname:short)%09%(objectname)%09%(HEAD)%09%(upstream:short)"

// parseBranches reads `git branch --format=branchFormat` output.
func parseBranches(out string, remote bool) []core.BranchInfo {
	var branches []core.BranchInfo
	for _, line := range strings.Split(out, "\n") {
		fields := strings.Split(line, "\t")
		if len(fields) < 2 || fields[0] == "" {
			continue
		}
		b := core.BranchInfo{
			Name:   fields[0],
			Commit: fields[1],
			Remote: remote,
		}
		if len(fields) > 2 && strings.TrimSpace(fields[2]) == "*" {
			b.Current = true
		}
		if len(fields) > 3 {
			b.Upstream = fields[3]
		}
		// Symbolic entries like "origin/HEAD" carry no commit.
		if b.Commit == "" {
			continue
		}
		branches = append(branches, b)
	}
	return branches
}

// parseBlamePorcelain reads `git blame --porcelain` output. Headers repeat
// the commit sha for every line; author metadata appears once per commit
// and is cached for later lines of the same commit.
func parseBlamePorcelain(out string) []core.BlameLine {
	type meta struct {
		author string
		date   time.Time
	}
	metas := make(map[string]*meta)

	var lines []core.BlameLine
	var cur *core.BlameLine
	var curMeta *meta

	for _, raw := range strings.Split(out, "\n") {
		if strings.HasPrefix(raw, "\t") {
			if cur != nil {
				cur.Content = strings.TrimPrefix(raw, "\t")
				if curMeta != nil {
					cur.Author = curMeta.author
					cur.Date = curMeta.date
				}
				lines = append(lines, *cur)
				cur = nil
			}
			continue
		}
		fields := strings.Fields(raw)
		if cur == nil && len(fields) >= 3 && len(fields[0]) == 40 {
			lineNo, err := strconv.Atoi(fields[2])
			if err != nil {
				continue
			}
			cur = &core.BlameLine{Commit: fields[0], Line: lineNo}
			if m, ok := metas[fields[0]]; ok {
				curMeta = m
			} else {
				curMeta = &meta{}
				metas[fields[0]] = curMeta
			}
			continue
		}
		if curMeta == nil || len(fields) == 0 {
			continue
		}
		switch fields[0] {
		case "author":
			curMeta.author = strings.TrimSpace(strings.TrimPrefix(raw, "author "))
		case "author-time":
			if len(fields) > 1 {
				if secs, err := strconv.ParseInt(fields[1], 10, 64); err == nil {
					curMeta.date = time.Unix(secs, 0).UTC()
				}
			}
		}
	}
	return lines
}

// stashFormat produces "stash@{N}\treflog subject" per entry.
const stashFormat = "%gd%x09%gs"

// parseStashList reads `git stash list --format=stashFormat` output.
// Subjects look like "WIP on main: abc1234 subject" or "On main: message".
func parseStashList(out string) []core.StashEntry {
	var entries []core.StashEntry
	for _, line := range strings.Split(out, "\n") {
		fields := strings.SplitN(line, "\t", 2)
		if len(fields) != 2 || !strings.HasPrefix(fields[0], "stash@{") {
			continue
		}
		idx, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(fields[0], "stash@{"), "}"))
		if err != nil {
			continue
		}
		entry := core.StashEntry{Index: idx, Message: fields[1]}
		subject := fields[1]
		for _, prefix := range []string{"WIP on ", "On "} {
			if strings.HasPrefix(subject, prefix) {
				rest := subject[len(prefix):]
				if i := strings.Index(rest, ": "); i > 0 {
					entry.Branch = rest[:i]
					entry.Message = rest[i+2:]
				}
				break
			}
		}
		entries = append(entries, entry)
	}
	return entries
}

// tagFormat produces "name\tsha\tderef-sha\tsubject" per tag. The third
// field is empty for lightweight tags and the commit behind annotated ones.
const tagFormat = "%(refname:short)%09%(objectname)%09%(*objectname)%09%(contents:subject)"

// parseTags reads `git tag --list --format=tagFormat` output.
func parseTags(out string) []core.TagInfo {
	var tags []core.TagInfo
	for _, line := range strings.Split(out, "\n") {
		fields := strings.Split(line, "\t")
		if len(fields) < 4 || fields[0] == "" {
			continue
		}
		tag := core.TagInfo{Name: fields[0], Commit: fields[1]}
		if fields[2] != "" {
			tag.Annotated = true
			tag.Commit = fields[2]
			tag.Message = fields[3]
		}
		tags = append(tags, tag)
	}
	return tags
}

// parseRemotes reads `git remote -v` output, merging the fetch and push
// rows of each remote.
func parseRemotes(out string) []core.RemoteInfo {
	byName := make(map[string]*core.RemoteInfo)
	var order []string
	for _, line := range strings.Split(out, "\n") {
		fields := strings.Fields(line)
		if len(fields) < 3 {
			continue
		}
		r, ok := byName[fields[0]]
		if !ok {
			r = &core.RemoteInfo{Name: fields[0]}
			byName[fields[0]] = r
			order = append(order, fields[0])
		}
		switch fields[2] {
		case "(fetch)":
			r.FetchURL = fields[1]
		case "(push)":
			r.PushURL = fields[1]
		}
	}
	remotes := make([]core.RemoteInfo, 0, len(order))
	for _, name := range order {
		remotes = append(remotes, *byName[name])
	}
	return remotes
}

// parseFetchRefs extracts updated ref names from fetch stderr lines such
// as "   abc123..def456  main -> origin/main".
func parseFetchRefs(out string) []string {
	var refs []string
	for _, line := range strings.Split(out, "\n") {
		i := strings.Index(line, "->")
		if i < 0 {
			continue
		}
		ref := strings.TrimSpace(line[i+2:])
		if ref != "" {
			refs = append(refs, ref)
		}
	}
	return refs
}

// parseSubmoduleStatus reads `git submodule status` lines:
// " <sha> <path> (<ref>)" with a leading state character.
func parseSubmoduleStatus(out string) []core.SubmoduleInfo {
	var subs []core.SubmoduleInfo
	for _, line := range strings.Split(out, "\n") {
		if len(line) < 2 {
			continue
		}
		state := line[:1]
		fields := strings.Fields(line[1:])
		if len(fields) < 2 {
			continue
		}
		subs = append(subs, core.SubmoduleInfo{
			Commit: strings.TrimPrefix(fields[0], "-"),
			Path:   fields[1],
			Status: state,
		})
	}
	return subs
}

// parseCleanPaths reads `git clean` output lines "Removing <path>" or
// "Would remove <path>".
func parseCleanPaths(out string) []string {
	var removed []string
	for _, line := range strings.Split(out, "\n") {
		for _, prefix := range []string{"Removing ", "Would remove "} {
			if strings.HasPrefix(line, prefix) {
				removed = append(removed, strings.TrimSuffix(strings.TrimPrefix(line, prefix), "/"))
				break
			}
		}
	}
	return removed
}

// parseLFSPatterns reads `git lfs track` output: an intro line followed by
// indented "    *.bin (.gitattributes)" entries.
func parseLFSPatterns(out string) []string {
	var patterns []string
	for _, line := range strings.Split(out, "\n") {
		if !strings.HasPrefix(line, "    ") {
			continue
		}
		pattern := strings.TrimSpace(line)
		if i := strings.LastIndex(pattern, " ("); i > 0 {
			pattern = pattern[:i]
		}
		if pattern != "" {
			patterns = append(patterns, pattern)
		}
	}
	return patterns
}

// parseLFSFiles reads `git lfs ls-files --long --size` lines:
// "<oid> <marker> <name> (<size>)". Marker "*" means the object is
// present locally, "-" means only the pointer is.
func parseLFSFiles(out string) []core.LFSFile {
	var files []core.LFSFile
	for _, line := range strings.Split(out, "\n") {
		fields := strings.Fields(line)
		if len(fields) < 3 {
			continue
		}
		f := core.LFSFile{OID: fields[0]}
		switch fields[1] {
		case "*":
			f.Status = "present"
		case "-":
			f.Status = "pointer"
		default:
			continue
		}
		name := strings.Join(fields[2:], " ")
		if i := strings.LastIndex(name, " ("); i > 0 && strings.HasSuffix(name, ")") {
			f.SizeBytes = parseHumanSize(name[i+2 : len(name)-1])
			name = name[:i]
		}
		f.Name = name
		files = append(files, f)
	}
	return files
}

// parseHumanSize converts git-lfs humanized sizes ("12 MB", "3.4 KB") to
// bytes. Unknown units yield 0.
func parseHumanSize(s string) int64 {
	fields := strings.Fields(s)
	if len(fields) != 2 {
		return 0
	}
	value, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return 0
	}
	var mult float64
	switch strings.ToUpper(fields[1]) {
	case "B":
		mult = 1
	case "KB":
		mult = 1 << 10
	case "MB":
		mult = 1 << 20
	case "GB":
		mult = 1 << 30
	case "TB":
		mult = 1 << 40
	default:
		return 0
	}
	return int64(value * mult)
}

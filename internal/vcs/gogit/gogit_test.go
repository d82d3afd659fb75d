package gogit

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"

	"tools.zach/dev/semsync/internal/vcs"
)

// testRepo is a throwaway repository with deterministic commit times.
type testRepo struct {
	t    *testing.T
	dir  string
	repo *git.Repository
	wt   *git.Worktree
	when time.Time
}

func newTestRepo(t *testing.T) *testRepo {
	t.Helper()
	dir := t.TempDir()
	repo, err := git.PlainInit(dir, false)
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	wt, err := repo.Worktree()
	if err != nil {
		t.Fatalf("worktree: %v", err)
	}
	return &testRepo{t: t, dir: dir, repo: repo, wt: wt, when: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (r *testRepo) sig() *object.Signature {
	r.when = r.when.Add(time.Minute)
	return &object.Signature{Name: "Test", Email: "test@example.com", When: r.when}
}

func (r *testRepo) write(name, content string) {
	r.t.Helper()
	if err := os.WriteFile(filepath.Join(r.dir, name), []byte(content), 0o644); err != nil {
		r.t.Fatal(err)
	}
}

// commit writes name with content, stages it and commits.
func (r *testRepo) commit(name, content string, parents ...plumbing.Hash) plumbing.Hash {
	r.t.Helper()
	r.write(name, content)
	if _, err := r.wt.Add(name); err != nil {
		r.t.Fatalf("add: %v", err)
	}
	opts := &git.CommitOptions{Author: r.sig()}
	if len(parents) > 0 {
		opts.Parents = parents
	}
	h, err := r.wt.Commit("change "+name, opts)
	if err != nil {
		r.t.Fatalf("commit: %v", err)
	}
	return h
}

func (r *testRepo) tag(name string, h plumbing.Hash, annotated bool) {
	r.t.Helper()
	var opts *git.CreateTagOptions
	if annotated {
		opts = &git.CreateTagOptions{Tagger: r.sig(), Message: "release " + name}
	}
	if _, err := r.repo.CreateTag(name, h, opts); err != nil {
		r.t.Fatalf("tag: %v", err)
	}
}

func (r *testRepo) setRef(name plumbing.ReferenceName, h plumbing.Hash) {
	r.t.Helper()
	if err := r.repo.Storer.SetReference(plumbing.NewHashReference(name, h)); err != nil {
		r.t.Fatalf("set ref: %v", err)
	}
}

func (r *testRepo) backend(tagMatch string) *Backend {
	return New(r.repo, tagMatch)
}

// ///////////////////////////////////////////////
// Tests
// ///////////////////////////////////////////////

func TestLatestTagAndCount(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	r.commit("alire.toml", "version = \"0.1.0\"\n")
	tagged := r.commit("alire.toml", "version = \"1.0.0\"\n")
	r.tag("v1.0.0", tagged, true)
	r.commit("a.adb", "a")
	r.commit("b.adb", "b")
	r.commit("c.adb", "c")

	b := r.backend("")
	tag, err := b.LatestTag(ctx)
	if err != nil {
		t.Fatalf("LatestTag: %v", err)
	}
	if tag != "v1.0.0" {
		t.Errorf("tag = %q, want v1.0.0", tag)
	}

	n, err := b.CommitCount(ctx, tag)
	if err != nil {
		t.Fatalf("CommitCount: %v", err)
	}
	if n != 3 {
		t.Errorf("commits since tag = %d, want 3", n)
	}

	all, err := b.CommitCount(ctx, "")
	if err != nil {
		t.Fatalf("CommitCount all: %v", err)
	}
	if all != 5 {
		t.Errorf("all commits = %d, want 5", all)
	}
}

func TestLatestTagNone(t *testing.T) {
	r := newTestRepo(t)
	r.commit("alire.toml", "version = \"0.1.0\"\n")
	_, err := r.backend("").LatestTag(context.Background())
	if !errors.Is(err, vcs.ErrNoTag) {
		t.Fatalf("err = %v, want ErrNoTag", err)
	}
}

func TestLatestTagMatchFilters(t *testing.T) {
	r := newTestRepo(t)
	h1 := r.commit("a", "1")
	r.tag("v0.1.0", h1, false)
	h2 := r.commit("a", "2")
	r.tag("nightly", h2, false)

	tag, err := r.backend("v*").LatestTag(context.Background())
	if err != nil {
		t.Fatalf("LatestTag: %v", err)
	}
	if tag != "v0.1.0" {
		t.Errorf("tag = %q, want v0.1.0", tag)
	}
}

func TestLatestTagPrefersFewestCommitsAway(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	r.commit("a", "root")
	old := r.commit("a", "release")
	r.tag("v1.0.0", old, false)
	r.commit("a", "b")
	r.commit("a", "c")
	d := r.commit("a", "d")
	e := r.commit("a", "e")

	// A side commit on d tagged with a committer date older than v1.0.0,
	// merged back into the mainline.
	dc, err := r.repo.CommitObject(d)
	if err != nil {
		t.Fatal(err)
	}
	skewed := time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)
	side := storeCommit(t, r, dc.TreeHash, skewed, d)
	r.tag("v1.1.0", side, false)
	ec, err := r.repo.CommitObject(e)
	if err != nil {
		t.Fatal(err)
	}
	merge := storeCommit(t, r, ec.TreeHash, r.sig().When, e, side)
	head, err := r.repo.Head()
	if err != nil {
		t.Fatal(err)
	}
	r.setRef(head.Name(), merge)

	b := r.backend("")
	tag, err := b.LatestTag(ctx)
	if err != nil {
		t.Fatalf("LatestTag: %v", err)
	}
	if tag != "v1.1.0" {
		t.Errorf("tag = %q, want v1.1.0 (one commit away)", tag)
	}
	n, err := b.CommitCount(ctx, tag)
	if err != nil {
		t.Fatalf("CommitCount: %v", err)
	}
	if n != 1 {
		t.Errorf("commits since tag = %d, want 1", n)
	}
}

// storeCommit writes a commit with the given tree, date and parents without
// touching the worktree or any reference.
func storeCommit(t *testing.T, r *testRepo, tree plumbing.Hash, when time.Time, parents ...plumbing.Hash) plumbing.Hash {
	t.Helper()
	sig := object.Signature{Name: "Test", Email: "test@example.com", When: when}
	c := &object.Commit{
		Author:       sig,
		Committer:    sig,
		Message:      "stored commit",
		TreeHash:     tree,
		ParentHashes: parents,
	}
	obj := r.repo.Storer.NewEncodedObject()
	if err := c.Encode(obj); err != nil {
		t.Fatalf("encode: %v", err)
	}
	h, err := r.repo.Storer.SetEncodedObject(obj)
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	return h
}

func TestCommitCountSkipsMerges(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	root := r.commit("a", "root")
	r.tag("v1.0.0", root, false)
	left := r.commit("a", "left")
	// Build a side commit on top of root, then merge it.
	sideCommit, err := r.repo.CommitObject(root)
	if err != nil {
		t.Fatal(err)
	}
	side := commitOnto(t, r, sideCommit, "side work")
	r.commit("a", "merged", left, side)

	n, err := r.backend("").CommitCount(ctx, "v1.0.0")
	if err != nil {
		t.Fatalf("CommitCount: %v", err)
	}
	if n != 2 {
		t.Errorf("non-merge commits since tag = %d, want 2", n)
	}
}

// commitOnto creates a commit with parent's tree and a single parent,
// without touching the worktree.
func commitOnto(t *testing.T, r *testRepo, parent *object.Commit, msg string) plumbing.Hash {
	t.Helper()
	c := &object.Commit{
		Author:       *r.sig(),
		Committer:    *r.sig(),
		Message:      msg,
		TreeHash:     parent.TreeHash,
		ParentHashes: []plumbing.Hash{parent.Hash},
	}
	obj := r.repo.Storer.NewEncodedObject()
	if err := c.Encode(obj); err != nil {
		t.Fatalf("encode: %v", err)
	}
	h, err := r.repo.Storer.SetEncodedObject(obj)
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	return h
}

func TestIsClean(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	r.commit("alire.toml", "version = \"0.1.0\"\n")
	b := r.backend("")

	clean, err := b.IsClean(ctx)
	if err != nil || !clean {
		t.Fatalf("IsClean after commit = %v, %v; want true", clean, err)
	}

	r.write("untracked.txt", "scratch")
	clean, err = b.IsClean(ctx)
	if err != nil || !clean {
		t.Fatalf("IsClean with untracked file = %v, %v; want true", clean, err)
	}

	r.write("alire.toml", "version = \"0.2.0\"\n")
	clean, err = b.IsClean(ctx)
	if err != nil || clean {
		t.Fatalf("IsClean with modification = %v, %v; want false", clean, err)
	}
}

func TestMergeBaseAndShowFileAt(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	trunk := r.commit("alire.toml", "name = \"x\"\nversion = \"1.2.0\"\n")
	r.setRef(plumbing.NewRemoteReferenceName("origin", "main"), trunk)
	r.commit("alire.toml", "name = \"x\"\nversion = \"1.3.0-dev.1\"\n")

	b := r.backend("")
	base, err := b.MergeBase(ctx, "origin/main")
	if err != nil {
		t.Fatalf("MergeBase: %v", err)
	}
	if base != trunk.String() {
		t.Errorf("merge base = %s, want %s", base, trunk)
	}

	data, err := b.ShowFileAt(ctx, base, "alire.toml")
	if err != nil {
		t.Fatalf("ShowFileAt: %v", err)
	}
	if string(data) != "name = \"x\"\nversion = \"1.2.0\"\n" {
		t.Errorf("content = %q", data)
	}

	_, err = b.ShowFileAt(ctx, base, "missing.toml")
	if !errors.Is(err, vcs.ErrFileNotFound) {
		t.Errorf("err = %v, want ErrFileNotFound", err)
	}
}

func TestMergeBaseUnknownRef(t *testing.T) {
	r := newTestRepo(t)
	r.commit("a", "1")
	_, err := r.backend("").MergeBase(context.Background(), "origin/main")
	if !errors.Is(err, vcs.ErrNoMergeBase) {
		t.Fatalf("err = %v, want ErrNoMergeBase", err)
	}
}

func TestRemoteURL(t *testing.T) {
	r := newTestRepo(t)
	_, err := r.repo.CreateRemote(&config.RemoteConfig{Name: "origin", URLs: []string{"git@github.com:acme/widgets.git"}})
	if err != nil {
		t.Fatalf("create remote: %v", err)
	}
	url, err := r.backend("").RemoteURL(context.Background(), "origin")
	if err != nil {
		t.Fatalf("RemoteURL: %v", err)
	}
	if url != "git@github.com:acme/widgets.git" {
		t.Errorf("url = %q", url)
	}
}

func TestOpenNotARepository(t *testing.T) {
	_, err := Open(t.TempDir(), "")
	if !errors.Is(err, vcs.ErrUnavailable) {
		t.Fatalf("err = %v, want ErrUnavailable", err)
	}
}

// Command forester is the external wrapper around a repository's core:
// init, commit, branch, checkout, stash, status, rebuild, show, log
// and tag subcommands, each a thin argument-parsing shell over the
// repo package. Exit 0 on success, 1 on any reported error.
package main

import (
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/forestervcs/forester/core"
	"github.com/forestervcs/forester/objstore"
	"github.com/forestervcs/forester/repo"
)

const (
	PromptColor  = "\033[36m" // Cyan
	ErrorColor   = "\033[31m" // Red
	SuccessColor = "\033[32m" // Green
	ResetColor   = "\033[0m"
	BoldColor    = "\033[1m"
)

// Version is set at build time via -ldflags.
var Version = "dev"

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) == 0 {
		printBanner()
		printUsage()
		return 1
	}

	cmd, rest := args[0], args[1:]
	var err error
	switch cmd {
	case "init":
		err = cmdInit(rest)
	case "commit":
		err = cmdCommit(rest)
	case "branch":
		err = cmdBranch(rest)
	case "checkout":
		err = cmdCheckout(rest)
	case "stash":
		err = cmdStash(rest)
	case "status":
		err = cmdStatus(rest)
	case "rebuild":
		err = cmdRebuild(rest)
	case "show":
		err = cmdShow(rest)
	case "log":
		err = cmdLog(rest)
	case "tag":
		err = cmdTag(rest)
	case "-h", "--help", "help":
		printBanner()
		printUsage()
		return 0
	default:
		fmt.Fprintf(os.Stderr, "%sforester: unknown command %q%s\n", ErrorColor, cmd, ResetColor)
		printUsage()
		return 1
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "%sforester: %v%s\n", ErrorColor, err, ResetColor)
		return 1
	}
	return 0
}

func printBanner() {
	fmt.Println()
	fmt.Printf("%s%s╔═══════════════════════════════════════╗%s\n", BoldColor, PromptColor, ResetColor)
	fmt.Printf("%s%s║  forester v%-28s║%s\n", BoldColor, PromptColor, Version, ResetColor)
	fmt.Printf("%s%s║  version control for 3D asset scenes   ║%s\n", BoldColor, PromptColor, ResetColor)
	fmt.Printf("%s%s╚═══════════════════════════════════════╝%s\n", BoldColor, PromptColor, ResetColor)
	fmt.Println()
}

func printUsage() {
	fmt.Fprintln(os.Stderr, `usage: forester <command> [args]

commands:
  init [path] [--force]
  commit [-m MSG] [-a AUTHOR] [--no-verify]
  branch {create NAME [--from B] | list | delete NAME [--force] | switch NAME}
  checkout TARGET [--force] [--no-verify]
  stash {create [-m MSG] | list | apply HASH [--force] | delete HASH}
  status
  rebuild [--no-backup]
  show HASH [--full]
  log [BRANCH] [-v]
  tag {create NAME [COMMIT] | list | delete NAME | show NAME}`)
}

// currentIdentity resolves the commit author from DFM_AUTHOR/DFM_EMAIL
// falling back to the local user, reusing the hook env-var names as
// the CLI's own author-resolution convention.
func currentIdentity(override string) core.Identity {
	if override != "" {
		if name, email, ok := strings.Cut(override, "<"); ok {
			return core.Identity{Name: strings.TrimSpace(name), Email: strings.TrimSuffix(strings.TrimSpace(email), ">")}
		}
		return core.Identity{Name: override}
	}
	if name := os.Getenv("DFM_AUTHOR"); name != "" {
		return core.Identity{Name: name, Email: os.Getenv("DFM_EMAIL")}
	}
	if u := os.Getenv("USER"); u != "" {
		return core.Identity{Name: u}
	}
	return core.Identity{Name: "unknown"}
}

func openRepo() (*repo.Repository, error) {
	path, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	return repo.Open(path)
}

func cmdInit(args []string) error {
	fs := flag.NewFlagSet("init", flag.ContinueOnError)
	force := fs.Bool("force", false, "reinitialize even if .DFM already exists")
	if err := fs.Parse(args); err != nil {
		return err
	}

	path := "."
	if fs.NArg() > 0 {
		path = fs.Arg(0)
	}
	if path == "." {
		cwd, err := os.Getwd()
		if err != nil {
			return err
		}
		path = cwd
	}

	r, err := repo.Init(path, *force)
	if err != nil {
		if errors.Is(err, core.ErrAlreadyInitialized) {
			return fmt.Errorf("%s is already a forester repository (use --force to reinitialize)", path)
		}
		return err
	}
	defer r.Close()

	fmt.Printf("%sInitialized empty forester repository in %s/.DFM%s\n", SuccessColor, path, ResetColor)
	return nil
}

func cmdCommit(args []string) error {
	fs := flag.NewFlagSet("commit", flag.ContinueOnError)
	message := fs.String("m", "", "commit message")
	author := fs.String("a", "", "author, NAME or \"NAME <email>\"")
	noVerify := fs.Bool("no-verify", false, "skip pre/post-commit hooks")
	if err := fs.Parse(args); err != nil {
		return err
	}

	r, err := openRepo()
	if err != nil {
		return err
	}
	defer r.Close()

	c, err := r.Commit(currentIdentity(*author), *message, repo.CommitOptions{SkipHooks: *noVerify})
	if err != nil {
		if errors.Is(err, core.ErrNoChanges) {
			fmt.Printf("%snothing to commit, workspace matches HEAD%s\n", PromptColor, ResetColor)
			return nil
		}
		return err
	}
	fmt.Printf("%s[%s %s]%s %s\n", SuccessColor, c.Branch, shortHash(c.Hash), ResetColor, c.Message)
	return nil
}

func cmdBranch(args []string) error {
	r, err := openRepo()
	if err != nil {
		return err
	}
	defer r.Close()

	if len(args) == 0 {
		return printBranches(r)
	}

	switch args[0] {
	case "create":
		fs := flag.NewFlagSet("branch create", flag.ContinueOnError)
		from := fs.String("from", "", "branch or commit to branch from")
		if err := fs.Parse(args[1:]); err != nil {
			return err
		}
		if fs.NArg() != 1 {
			return errors.New("usage: branch create NAME [--from B]")
		}
		fromHash := *from
		if fromHash != "" {
			if h, err := r.BranchHead(fromHash); err == nil {
				fromHash = h // --from named an existing branch
			}
		}
		if err := r.CreateBranch(fs.Arg(0), fromHash); err != nil {
			return err
		}
		fmt.Printf("%screated branch %s%s\n", SuccessColor, fs.Arg(0), ResetColor)
		return nil

	case "list":
		return printBranches(r)

	case "delete":
		fs := flag.NewFlagSet("branch delete", flag.ContinueOnError)
		force := fs.Bool("force", false, "delete even if it is the current branch")
		if err := fs.Parse(args[1:]); err != nil {
			return err
		}
		if fs.NArg() != 1 {
			return errors.New("usage: branch delete NAME [--force]")
		}
		if err := r.DeleteBranch(fs.Arg(0), *force); err != nil {
			return err
		}
		fmt.Printf("%sdeleted branch %s%s\n", SuccessColor, fs.Arg(0), ResetColor)
		return nil

	case "switch":
		if len(args) != 2 {
			return errors.New("usage: branch switch NAME")
		}
		if _, err := r.SwitchBranch(args[1]); err != nil {
			return err
		}
		fmt.Printf("%sswitched to branch %s%s\n", SuccessColor, args[1], ResetColor)
		return nil

	default:
		return fmt.Errorf("unknown branch subcommand %q", args[0])
	}
}

func printBranches(r *repo.Repository) error {
	names, err := r.ListBranches()
	if err != nil {
		return err
	}
	state, err := r.CurrentState()
	if err != nil {
		return err
	}
	for _, name := range names {
		marker := "  "
		if name == state.Branch && !state.Detached {
			marker = "* "
		}
		fmt.Printf("%s%s\n", marker, name)
	}
	return nil
}

func cmdCheckout(args []string) error {
	fs := flag.NewFlagSet("checkout", flag.ContinueOnError)
	force := fs.Bool("force", false, "discard uncommitted changes")
	noVerify := fs.Bool("no-verify", false, "skip pre/post-checkout hooks")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("usage: checkout TARGET [--force] [--no-verify]")
	}
	target := fs.Arg(0)

	r, err := openRepo()
	if err != nil {
		return err
	}
	defer r.Close()

	if _, err := r.Checkout(target, *force, nil, nil, *noVerify); err != nil {
		if errors.Is(err, core.ErrUncommittedChanges) {
			return fmt.Errorf("uncommitted changes in workspace; commit, stash, or pass --force")
		}
		return err
	}
	fmt.Printf("%schecked out %s%s\n", SuccessColor, target, ResetColor)
	return nil
}

func cmdStash(args []string) error {
	if len(args) == 0 {
		return errors.New("usage: stash {create [-m MSG] | list | apply HASH [--force] | delete HASH}")
	}

	r, err := openRepo()
	if err != nil {
		return err
	}
	defer r.Close()

	switch args[0] {
	case "create":
		fs := flag.NewFlagSet("stash create", flag.ContinueOnError)
		message := fs.String("m", "", "stash message")
		if err := fs.Parse(args[1:]); err != nil {
			return err
		}
		hash, err := r.CreateStash(*message)
		if err != nil {
			if errors.Is(err, core.ErrNoChanges) {
				fmt.Printf("%snothing to stash, workspace matches HEAD%s\n", PromptColor, ResetColor)
				return nil
			}
			return err
		}
		fmt.Printf("%sstashed as %s%s\n", SuccessColor, shortHash(hash), ResetColor)
		return nil

	case "list":
		stashes, err := r.ListStashes()
		if err != nil {
			return err
		}
		for _, s := range stashes {
			ts := time.Unix(s.Timestamp, 0).Format(time.RFC3339)
			fmt.Printf("%s  %s  %s\n", shortHash(s.Hash), ts, s.Message)
		}
		return nil

	case "apply":
		fs := flag.NewFlagSet("stash apply", flag.ContinueOnError)
		force := fs.Bool("force", false, "apply even over uncommitted changes")
		if err := fs.Parse(args[1:]); err != nil {
			return err
		}
		if fs.NArg() != 1 {
			return errors.New("usage: stash apply HASH [--force]")
		}
		if err := r.ApplyStash(fs.Arg(0), *force); err != nil {
			return err
		}
		fmt.Printf("%sapplied stash %s%s\n", SuccessColor, shortHash(fs.Arg(0)), ResetColor)
		return nil

	case "delete":
		if len(args) != 2 {
			return errors.New("usage: stash delete HASH")
		}
		if err := r.DeleteStash(args[1]); err != nil {
			return err
		}
		fmt.Printf("%sdeleted stash %s%s\n", SuccessColor, shortHash(args[1]), ResetColor)
		return nil

	default:
		return fmt.Errorf("unknown stash subcommand %q", args[0])
	}
}

func cmdStatus(args []string) error {
	r, err := openRepo()
	if err != nil {
		return err
	}
	defer r.Close()

	state, err := r.CurrentState()
	if err != nil {
		return err
	}
	if state.Detached {
		fmt.Printf("HEAD detached at %s\n", shortHash(state.Head))
	} else {
		fmt.Printf("On branch %s\n", state.Branch)
	}
	if state.Head == "" {
		fmt.Println("No commits yet")
	}

	dirty, err := r.HasUncommittedChanges()
	if err != nil {
		return err
	}
	if dirty {
		fmt.Println("Changes not committed")
	} else {
		fmt.Println("Workspace clean")
	}
	return nil
}

func cmdRebuild(args []string) error {
	fs := flag.NewFlagSet("rebuild", flag.ContinueOnError)
	noBackup := fs.Bool("no-backup", false, "skip backing up the existing index before rebuilding")
	if err := fs.Parse(args); err != nil {
		return err
	}

	r, err := openRepo()
	if err != nil {
		return err
	}
	defer r.Close()

	result, err := r.Rebuild(slog.Default(), !*noBackup)
	if err != nil {
		return err
	}
	fmt.Printf("rebuilt index: %d commits, %d trees, %d blobs, %d meshes\n",
		result.Commits, result.Trees, result.Blobs, result.Meshes)
	return nil
}

func cmdShow(args []string) error {
	fs := flag.NewFlagSet("show", flag.ContinueOnError)
	full := fs.Bool("full", false, "print the full tree listing")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("usage: show HASH [--full]")
	}

	r, err := openRepo()
	if err != nil {
		return err
	}
	defer r.Close()

	c, err := r.Store().LoadCommit(fs.Arg(0))
	if err != nil {
		return err
	}
	printCommit(c)

	if *full {
		tree, err := r.Store().LoadTree(c.TreeHash)
		if err != nil {
			return err
		}
		fmt.Println()
		for _, e := range tree.Entries {
			fmt.Printf("  %s  %8d  %s\n", shortHash(e.Hash), e.Size, e.Path)
		}
	}
	return nil
}

func printCommit(c *objstore.Commit) {
	fmt.Printf("commit %s\n", c.Hash)
	if c.Tag != "" {
		fmt.Printf("tag:    %s\n", c.Tag)
	}
	fmt.Printf("Author: %s\n", c.Author)
	fmt.Printf("Date:   %s\n", time.Unix(c.Timestamp, 0).Format(time.RFC3339))
	fmt.Printf("Branch: %s\n", c.Branch)
	if c.CommitType == objstore.CommitMeshOnly {
		fmt.Printf("Type:   mesh_only (%s)\n", strings.Join(c.SelectedMeshNames, ", "))
	}
	fmt.Println()
	fmt.Printf("    %s\n", c.Message)
}

func cmdLog(args []string) error {
	fs := flag.NewFlagSet("log", flag.ContinueOnError)
	verbose := fs.Bool("v", false, "show full commit details instead of a one-line summary")
	if err := fs.Parse(args); err != nil {
		return err
	}

	r, err := openRepo()
	if err != nil {
		return err
	}
	defer r.Close()

	branch := ""
	if fs.NArg() > 0 {
		branch = fs.Arg(0)
	} else {
		branch, err = r.CurrentBranch()
		if err != nil {
			return err
		}
	}

	commits, err := r.DB().ListCommits(branch)
	if err != nil {
		return err
	}
	for _, c := range commits {
		if *verbose {
			printCommit(c)
			fmt.Println()
			continue
		}
		ts := time.Unix(c.Timestamp, 0).Format("2006-01-02 15:04")
		fmt.Printf("%s  %s  %s\n", shortHash(c.Hash), ts, c.Message)
	}
	return nil
}

func cmdTag(args []string) error {
	if len(args) == 0 {
		return errors.New("usage: tag {create NAME [COMMIT] | list | delete NAME | show NAME}")
	}

	r, err := openRepo()
	if err != nil {
		return err
	}
	defer r.Close()

	switch args[0] {
	case "create":
		if len(args) < 2 {
			return errors.New("usage: tag create NAME [COMMIT]")
		}
		name := args[1]
		commitHash := ""
		if len(args) >= 3 {
			commitHash = args[2]
		} else {
			state, err := r.CurrentState()
			if err != nil {
				return err
			}
			commitHash = state.Head
		}
		if commitHash == "" {
			return errors.New("no commit to tag: HEAD has no commits")
		}
		if err := r.CreateTag(name, commitHash); err != nil {
			return err
		}
		fmt.Printf("%stagged %s as %s%s\n", SuccessColor, shortHash(commitHash), name, ResetColor)
		return nil

	case "list":
		tags, err := r.ListTags()
		if err != nil {
			return err
		}
		for _, c := range tags {
			fmt.Printf("%s  %s\n", c.Tag, shortHash(c.Hash))
		}
		return nil

	case "delete":
		if len(args) != 2 {
			return errors.New("usage: tag delete NAME")
		}
		if err := r.DeleteTag(args[1]); err != nil {
			return err
		}
		fmt.Printf("%sdeleted tag %s%s\n", SuccessColor, args[1], ResetColor)
		return nil

	case "show":
		if len(args) != 2 {
			return errors.New("usage: tag show NAME")
		}
		c, err := r.ShowTag(args[1])
		if err != nil {
			return err
		}
		printCommit(c)
		return nil

	default:
		return fmt.Errorf("unknown tag subcommand %q", args[0])
	}
}

func shortHash(h string) string {
	if len(h) > 10 {
		return h[:10]
	}
	return h
}

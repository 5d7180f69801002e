package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/ViniZap4/tasks-server/client"
	"github.com/ViniZap4/tasks-server/domain"
)

const defaultServer = "http://localhost:5000"

type runner struct {
	server string
	out    io.Writer
	errOut io.Writer
}

// run dispatches subcommands and returns an exit code (0 ok, 1 error, 2 usage).
func (r *runner) run(ctx context.Context, args []string) int {
	if len(args) == 0 {
		r.printHelp()
		return 2
	}
	cmd, a := args[0], args[1:]

	switch cmd {
	case "help", "-h", "--help":
		r.printHelp()
		return 0
	case "login":
		if len(a) != 2 {
			fail(r.errOut, "usage: taskctl login <username> <password>")
			return 2
		}
		return r.doLogin(ctx, a[0], a[1])
	case "logout":
		if err := client.DeleteCredentials(); err != nil {
			fail(r.errOut, "logout: "+err.Error())
			return 1
		}
		ok(r.out, "logged out")
		return 0
	case "ls":
		fs := flag.NewFlagSet("ls", flag.ContinueOnError)
		fs.SetOutput(r.errOut)
		filter := fs.String("filter", "all", "all | active | completed")
		if err := fs.Parse(a); err != nil {
			return 2
		}
		switch *filter {
		case "all", "active", "completed":
		default:
			fail(r.errOut, "ls: unknown filter: "+*filter)
			return 2
		}
		return r.doList(ctx, *filter)
	case "add":
		if len(a) == 0 {
			fail(r.errOut, "usage: taskctl add <title...>")
			return 2
		}
		return r.doAdd(ctx, strings.Join(a, " "))
	case "done", "undo":
		id, code := r.idArg(cmd, a, 1)
		if code != 0 {
			return code
		}
		completed := cmd == "done"
		return r.doUpdate(ctx, id, domain.TaskPatch{Completed: &completed}, cmd)
	case "edit":
		if len(a) < 2 {
			fail(r.errOut, "usage: taskctl edit <id> <title...>")
			return 2
		}
		id, code := r.idArg(cmd, a[:1], 1)
		if code != 0 {
			return code
		}
		title := strings.Join(a[1:], " ")
		return r.doUpdate(ctx, id, domain.TaskPatch{Title: &title}, "renamed")
	case "rm":
		id, code := r.idArg(cmd, a, 1)
		if code != 0 {
			return code
		}
		return r.doRemove(ctx, id)
	case "complete-all":
		return r.doBulk(ctx, "completed", (*client.Client).CompleteAll)
	case "uncheck":
		return r.doBulk(ctx, "unchecked", (*client.Client).UncheckCompleted)
	}

	fail(r.errOut, "unknown subcommand: "+cmd)
	fmt.Fprintln(r.errOut)
	r.printHelp()
	return 2
}

func (r *runner) printHelp() {
	fmt.Fprint(r.out, `taskctl - command line client for tasks-server

Usage:
  taskctl [--server URL] <subcommand> [args]

Subcommands:
  login <user> <password>   Sign in and store the session token
  logout                    Forget the stored token
  ls [--filter F]           List tasks (F: all, active, completed)
  add <title...>            Add a task
  done <id>                 Mark a task completed
  undo <id>                 Mark a task active
  edit <id> <title...>      Rename a task
  rm <id>                   Delete a task
  complete-all              Mark every task completed
  uncheck                   Mark every completed task active

Examples:
  taskctl login admin 1234
  taskctl add "Buy milk"
  taskctl done 2
`)
}

func (r *runner) idArg(cmd string, a []string, n int) (int, int) {
	if len(a) != n {
		fail(r.errOut, "usage: taskctl "+cmd+" <id>")
		return 0, 2
	}
	id, err := strconv.Atoi(a[0])
	if err != nil {
		fail(r.errOut, cmd+": not a number: "+a[0])
		return 0, 2
	}
	return id, 0
}

// client builds an API client from the stored credentials.
func (r *runner) client() (*client.Client, error) {
	creds, err := client.LoadCredentials()
	if err != nil {
		return nil, err
	}
	server := r.server
	token := ""
	if creds != nil {
		if creds.Expired(time.Now()) {
			return nil, errors.New("session expired, run `taskctl login`")
		}
		token = creds.Token
		if server == "" {
			server = creds.Server
		}
	}
	if server == "" {
		server = defaultServer
	}
	return client.New(server, token), nil
}

// report prints err and returns the exit code for it.
func (r *runner) report(what string, err error) int {
	if errors.Is(err, client.ErrUnauthorized) {
		fail(r.errOut, what+": "+err.Error())
		fmt.Fprintln(r.errOut, mutedStyle.Render("Hint: run `taskctl login <user> <password>`"))
		return 1
	}
	if errors.Is(err, client.ErrNotFound) {
		fail(r.errOut, what+": task not found")
		fmt.Fprintln(r.errOut, mutedStyle.Render("Hint: run `taskctl ls` to see task ids"))
		return 1
	}
	fail(r.errOut, what+": "+err.Error())
	return 1
}

func (r *runner) doLogin(ctx context.Context, username, password string) int {
	server := r.server
	if server == "" {
		server = defaultServer
	}
	c := client.New(server, "")
	token, expires, err := c.Login(ctx, username, password)
	if err != nil {
		return r.report("login", err)
	}
	if err := client.SaveCredentials(server, token, expires); err != nil {
		return r.report("login", err)
	}
	ok(r.out, "logged in as "+username)
	return 0
}

func (r *runner) doList(ctx context.Context, filter string) int {
	c, err := r.client()
	if err != nil {
		return r.report("ls", err)
	}
	tasks, err := c.List(ctx)
	if err != nil {
		return r.report("ls", err)
	}

	st := domain.Summarize(tasks)
	header := fmt.Sprintf("%s  %s %d  %s %d  %s %d",
		titleStyle.Render("Tasks"),
		successStyle.Render("✔"), st.Completed,
		pendingStyle.Render("•"), st.Pending,
		accentStyle.Render("Total"), st.Total,
	)
	lines := []string{
		header,
		mutedStyle.Render(progressBar(st.Completed, st.Total, 28)),
		"",
	}
	lines = append(lines, taskLines(filterTasks(tasks, filter))...)
	panel(r.out, lines)
	return 0
}

func filterTasks(tasks []domain.Task, filter string) []domain.Task {
	if filter == "all" {
		return tasks
	}
	var out []domain.Task
	for _, t := range tasks {
		if t.Completed == (filter == "completed") {
			out = append(out, t)
		}
	}
	return out
}

func taskLines(tasks []domain.Task) []string {
	if len(tasks) == 0 {
		return []string{mutedStyle.Render("no tasks")}
	}
	out := make([]string, 0, len(tasks))
	for _, t := range tasks {
		box, title := pendingStyle.Render(boxUnchecked), t.Title
		if t.Completed {
			box, title = successStyle.Render(boxChecked), doneStyle.Render(t.Title)
		}
		out = append(out, fmt.Sprintf("%s %s %s", mutedStyle.Render(fmt.Sprintf("%3d.", t.ID)), box, title))
	}
	return out
}

func (r *runner) doAdd(ctx context.Context, title string) int {
	if strings.TrimSpace(title) == "" {
		fail(r.errOut, "add: empty title")
		return 2
	}
	c, err := r.client()
	if err != nil {
		return r.report("add", err)
	}
	task, err := c.Create(ctx, title)
	if err != nil {
		return r.report("add", err)
	}
	ok(r.out, fmt.Sprintf("added #%d %s", task.ID, task.Title))
	return 0
}

func (r *runner) doUpdate(ctx context.Context, id int, patch domain.TaskPatch, verb string) int {
	c, err := r.client()
	if err != nil {
		return r.report(verb, err)
	}
	task, err := c.Update(ctx, id, patch)
	if err != nil {
		return r.report(verb, err)
	}
	state := "active"
	if task.Completed {
		state = "completed"
	}
	ok(r.out, fmt.Sprintf("#%d %s (%s)", task.ID, task.Title, state))
	return 0
}

func (r *runner) doRemove(ctx context.Context, id int) int {
	c, err := r.client()
	if err != nil {
		return r.report("rm", err)
	}
	if err := c.Delete(ctx, id); err != nil {
		return r.report("rm", err)
	}
	ok(r.out, fmt.Sprintf("removed #%d", id))
	return 0
}

func (r *runner) doBulk(ctx context.Context, verb string, op func(*client.Client, context.Context) ([]domain.Task, error)) int {
	c, err := r.client()
	if err != nil {
		return r.report(verb, err)
	}
	changed, err := op(c, ctx)
	if err != nil {
		return r.report(verb, err)
	}
	ok(r.out, fmt.Sprintf("%s %d task(s)", verb, len(changed)))
	return 0
}

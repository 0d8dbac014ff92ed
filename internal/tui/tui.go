package tui

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	goerrors "github.com/go-errors/errors"
	"github.com/jesseduffield/gocui"

	"github.com/Joseda-hg/lazytodo/internal/chat"
	"github.com/Joseda-hg/lazytodo/internal/model"
	"github.com/Joseda-hg/lazytodo/internal/taskview"
)

const (
	viewHeader  = "header"
	viewFooter  = "footer"
	viewPending = "pending"
	viewDone    = "done"
	viewTags    = "tags"
	viewDetail  = "detail"
	viewChat    = "chat"
	viewHistory = "history"
	viewSearch  = "search"
	viewForm    = "form"
	viewHelp    = "help"
	viewPrompt  = "prompt"
)

const recentHistoryLimit = 50

// HistoryReader is the local activity log shown in the history pane.
type HistoryReader interface {
	ListHistory(ctx context.Context, taskID string) ([]model.HistoryEntry, error)
	ListRecentHistory(ctx context.Context, limit int) ([]model.HistoryEntry, error)
}

type Deps struct {
	Tasks   *taskview.ViewModel
	Chat    *chat.Panel
	History HistoryReader
	Logger  *log.Logger
}

type promptKind int

const (
	promptTag promptKind = iota
	promptChat
	promptView
	promptRenameTag
)

type promptState struct {
	kind   promptKind
	value  string
	target string
}

type UI struct {
	tasks   *taskview.ViewModel
	chat    *chat.Panel
	journal HistoryReader
	logger  *log.Logger
	gui     *gocui.Gui

	snap       taskview.Snapshot
	activeView string

	pending    []model.Task
	done       []model.Task
	tags       []tagCountEntry
	history    []model.HistoryEntry
	historyFor string

	selectedPending int
	selectedDone    int
	selectedTags    int
	selectedHistory int
	focus           string
	taskPane        string

	form         *formState
	formEditor   *formEditor
	formTagIndex int
	searchActive bool
	helpActive   bool
	prompt       *promptState
	status       string
}

type formState struct {
	task   *model.Task
	fields []formField
	index  int
}

type formEditor struct {
	ui *UI
}

type searchEditor struct {
	ui *UI
}

func newUI(deps Deps) *UI {
	logger := deps.Logger
	if logger == nil {
		logger = log.Default()
	}
	ui := &UI{
		tasks:    deps.Tasks,
		chat:     deps.Chat,
		journal:  deps.History,
		logger:   logger,
		focus:    viewPending,
		taskPane: viewPending,
	}
	ui.formEditor = &formEditor{ui: ui}
	return ui
}

func Run(deps Deps) error {
	gui, err := gocui.NewGui(gocui.NewGuiOpts{OutputMode: gocui.OutputNormal})
	if err != nil {
		return err
	}
	defer gui.Close()

	ui := newUI(deps)
	ui.gui = gui
	gui.Mouse = true

	redraw := func() {
		gui.Update(func(*gocui.Gui) error { return nil })
	}
	ui.tasks.OnChange(redraw)
	if ui.chat != nil {
		ui.chat.OnChange(redraw)
	}

	gui.SetManagerFunc(ui.layout)
	if err := ui.bindKeys(gui); err != nil {
		return err
	}
	if err := ui.reload(gui, nil); err != nil {
		return err
	}

	if err := gui.MainLoop(); err != nil && err != gocui.ErrQuit {
		return err
	}

	return nil
}

type binding struct {
	view    string
	key     any
	handler func(*gocui.Gui, *gocui.View) error
}

func (u *UI) bindKeys(gui *gocui.Gui) error {
	bindings := []binding{
		{"", gocui.KeyCtrlC, u.quit},
		{"", 'q', u.quit},
		{"", 'r', u.reload},
		{"", 'g', u.clearFilters},
		{"", 'a', u.addTask},
		{"", 'e', u.editTask},
		{"", 'd', u.deleteTask},
		{"", 'x', u.toggleDone},
		{"", 'p', u.cycleTaskPriority},
		{"", 's', u.cycleStatusFilter},
		{"", 'f', u.cyclePriorityFilter},
		{"", 'o', u.cycleSort},
		{"", 'c', u.openChat},
		{"", 'n', u.newChat},
		{"", 'w', u.openSaveView},
		{"", 'v', u.nextView},
		{"", 'V', u.deleteView},
		{"", 'h', u.refreshHistory},
		{"", '/', u.startSearch},
		{"", '?', u.toggleHelp},
		{"", gocui.KeyTab, u.switchFocus},
		{"", '1', u.focusPending},
		{"", '2', u.focusDone},
		{"", '3', u.focusTags},
		{"", '4', u.focusDetail},
		{"", '5', u.focusChat},
		{"", '6', u.focusHistory},
		{viewTags, gocui.KeySpace, u.toggleTagFilter},
		{viewTags, gocui.KeyEnter, u.toggleTagFilter},
		{viewTags, 'a', u.openTagCreate},
		{viewTags, 'd', u.deleteTag},
		{viewTags, 'R', u.openTagRename},
		{viewTags, 't', u.tagTask},
		{viewSearch, gocui.KeyEnter, u.submitSearch},
		{viewSearch, gocui.KeyEsc, u.cancelSearch},
		{viewForm, gocui.KeyEnter, u.submitFormNow},
		{viewForm, gocui.KeyCtrlJ, u.submitFormNow},
		{viewForm, gocui.KeyTab, u.nextFormField},
		{viewForm, gocui.KeyBacktab, u.prevFormField},
		{viewForm, gocui.KeyArrowDown, u.nextFormField},
		{viewForm, gocui.KeyArrowUp, u.prevFormField},
		{viewForm, gocui.KeyEsc, u.cancelForm},
		{viewHelp, gocui.KeyEsc, u.closeHelp},
		{viewHelp, 'q', u.closeHelp},
		{viewHelp, '?', u.closeHelp},
		{viewPrompt, gocui.KeyEnter, u.submitPrompt},
		{viewPrompt, gocui.KeyEsc, u.cancelPrompt},
	}
	for _, name := range []string{viewPending, viewDone, viewTags, viewHistory} {
		bindings = append(bindings,
			binding{name, gocui.KeyArrowDown, u.moveDown},
			binding{name, 'j', u.moveDown},
			binding{name, gocui.KeyArrowUp, u.moveUp},
			binding{name, 'k', u.moveUp},
		)
	}

	for _, b := range bindings {
		if err := gui.SetKeybinding(b.view, b.key, gocui.ModNone, b.handler); err != nil {
			return err
		}
	}

	for _, name := range []string{viewPending, viewDone, viewTags, viewHistory} {
		viewName := name
		if err := gui.SetViewClickBinding(&gocui.ViewMouseBinding{ViewName: viewName, Key: gocui.MouseLeft, Handler: func(opts gocui.ViewMouseBindingOpts) error {
			return u.onListClick(gui, viewName, opts)
		}}); err != nil {
			return err
		}
	}
	return u.bindMouseScroll(gui)
}

func (u *UI) layout(gui *gocui.Gui) error {
	maxX, maxY := gui.Size()
	if maxX <= 0 || maxY <= 0 {
		return nil
	}
	u.sync()

	headerView, err := gui.SetView(viewHeader, 0, 0, maxX-1, 0, 0)
	if err != nil && !goerrors.Is(err, gocui.ErrUnknownView) {
		return err
	}
	headerView.Frame = false
	headerView.Wrap = true
	headerView.FgColor = gocui.ColorDefault
	u.renderHeader(headerView)

	footerY1 := max(maxY-2, 1)
	footerY0 := max(footerY1-3, 1)
	footerView, err := gui.SetView(viewFooter, 0, footerY0, maxX-1, footerY1, 0)
	if err != nil && !goerrors.Is(err, gocui.ErrUnknownView) {
		return err
	}
	footerView.Title = ""
	footerView.Frame = false
	footerView.Wrap = true
	footerView.FgColor = gocui.ColorDefault | gocui.AttrDim
	footerView.BgColor = gocui.ColorDefault
	u.renderFooter(footerView)

	bodyTop := 1
	bodyBottom := footerY0 - 1
	if bodyBottom < bodyTop {
		return nil
	}

	layout := computeLayout(maxX, bodyBottom-bodyTop+1)
	leftX0 := 0
	leftX1 := leftX0 + layout.leftWidth - 1
	rightX0 := leftX1 + 1
	if rightX0 >= maxX {
		rightX0 = leftX1
	}
	rightX1 := maxX - 1

	pendingY0 := bodyTop
	pendingY1 := pendingY0 + layout.pendingHeight - 1
	doneY0 := pendingY1 + 1
	doneY1 := doneY0 + layout.doneHeight - 1
	tagsY0 := doneY1 + 1
	tagsY1 := bodyBottom

	detailY0 := bodyTop
	detailY1 := detailY0 + layout.detailHeight - 1
	chatY0 := detailY1 + 1
	chatY1 := chatY0 + layout.chatHeight - 1
	historyY0 := chatY1 + 1
	historyY1 := bodyBottom

	pendingView, err := gui.SetView(viewPending, leftX0, pendingY0, leftX1, pendingY1, 0)
	if err != nil && !goerrors.Is(err, gocui.ErrUnknownView) {
		return err
	}
	if goerrors.Is(err, gocui.ErrUnknownView) {
		pendingView.TitleColor = gocui.ColorRed
	}
	pendingView.Title = fmt.Sprintf("1 Active (%d)", len(u.pending))
	applyViewStyle(pendingView, u.focus == viewPending, true)
	u.renderTaskList(pendingView, u.pending, u.selectedPending, u.focus == viewPending)

	doneView, err := gui.SetView(viewDone, leftX0, doneY0, leftX1, doneY1, 0)
	if err != nil && !goerrors.Is(err, gocui.ErrUnknownView) {
		return err
	}
	if goerrors.Is(err, gocui.ErrUnknownView) {
		doneView.TitleColor = gocui.ColorGreen
	}
	doneView.Title = fmt.Sprintf("2 Completed (%d)", len(u.done))
	applyViewStyle(doneView, u.focus == viewDone, true)
	u.renderTaskList(doneView, u.done, u.selectedDone, u.focus == viewDone)

	tagsView, err := gui.SetView(viewTags, leftX0, tagsY0, leftX1, tagsY1, 0)
	if err != nil && !goerrors.Is(err, gocui.ErrUnknownView) {
		return err
	}
	if goerrors.Is(err, gocui.ErrUnknownView) {
		tagsView.Title = "3 Tags"
		tagsView.TitleColor = gocui.ColorCyan
	}
	applyViewStyle(tagsView, u.focus == viewTags, false)
	u.renderTags(tagsView)

	detailView, err := gui.SetView(viewDetail, rightX0, detailY0, rightX1, detailY1, 0)
	if err != nil && !goerrors.Is(err, gocui.ErrUnknownView) {
		return err
	}
	if goerrors.Is(err, gocui.ErrUnknownView) {
		detailView.Title = "4 Detail"
		detailView.Wrap = true
	}
	applyViewStyle(detailView, u.focus == viewDetail, false)
	u.renderDetail(detailView)

	chatView, err := gui.SetView(viewChat, rightX0, chatY0, rightX1, chatY1, 0)
	if err != nil && !goerrors.Is(err, gocui.ErrUnknownView) {
		return err
	}
	if goerrors.Is(err, gocui.ErrUnknownView) {
		chatView.Title = "5 Chat"
		chatView.TitleColor = gocui.ColorMagenta
		chatView.Wrap = true
		chatView.Autoscroll = true
	}
	applyViewStyle(chatView, u.focus == viewChat, false)
	u.renderChat(chatView)

	historyView, err := gui.SetView(viewHistory, rightX0, historyY0, rightX1, historyY1, 0)
	if err != nil && !goerrors.Is(err, gocui.ErrUnknownView) {
		return err
	}
	if goerrors.Is(err, gocui.ErrUnknownView) {
		historyView.Title = "6 History"
	}
	applyViewStyle(historyView, u.focus == viewHistory, true)
	u.renderHistory(historyView, u.focus == viewHistory)

	_, _ = gui.SetViewOnTop(viewHeader)
	_, _ = gui.SetViewOnTop(viewFooter)

	if u.searchActive {
		if err := u.showSearch(gui); err != nil {
			return err
		}
	} else {
		_ = gui.DeleteView(viewSearch)
	}

	if u.form != nil {
		if err := u.showForm(gui); err != nil {
			return err
		}
	} else {
		_ = gui.DeleteView(viewForm)
	}

	if u.prompt != nil {
		if err := u.showPrompt(gui); err != nil {
			return err
		}
	} else {
		_ = gui.DeleteView(viewPrompt)
	}

	if u.helpActive {
		if err := u.showHelp(gui); err != nil {
			return err
		}
	} else {
		_ = gui.DeleteView(viewHelp)
	}

	if gui.CurrentView() == nil {
		_, _ = gui.SetCurrentView(u.focus)
	}

	gui.Cursor = u.searchActive || u.form != nil || u.prompt != nil

	return nil
}

type layout struct {
	leftWidth     int
	pendingHeight int
	doneHeight    int
	tagsHeight    int
	detailHeight  int
	chatHeight    int
	historyHeight int
}

func computeLayout(width, height int) layout {
	safeWidth := max(width-2, 20)
	safeHeight := max(height, 8)

	leftWidth := safeWidth / 2
	if leftWidth < 30 {
		leftWidth = 30
	}
	if leftWidth > safeWidth-18 {
		leftWidth = safeWidth / 2
	}

	pendingHeight := max(int(float64(safeHeight)*0.45), 4)
	doneHeight := max(int(float64(safeHeight)*0.3), 4)
	tagsHeight := safeHeight - pendingHeight - doneHeight
	if tagsHeight < 4 {
		tagsHeight = 4
		doneHeight = max(safeHeight-pendingHeight-tagsHeight, 4)
	}

	detailHeight := max(int(float64(safeHeight)*0.3), 4)
	chatHeight := max(int(float64(safeHeight)*0.45), 4)
	historyHeight := safeHeight - detailHeight - chatHeight
	if historyHeight < 4 {
		historyHeight = 4
		chatHeight = max(safeHeight-detailHeight-historyHeight, 4)
	}

	return layout{
		leftWidth:     leftWidth,
		pendingHeight: pendingHeight,
		doneHeight:    doneHeight,
		tagsHeight:    tagsHeight,
		detailHeight:  detailHeight,
		chatHeight:    chatHeight,
		historyHeight: historyHeight,
	}
}

// sync copies the view model state into the pane lists and clamps the
// selections. It runs before every frame.
func (u *UI) sync() {
	u.snap = u.tasks.Snapshot()
	u.pending, u.done = taskview.Split(u.snap.Tasks)
	u.tags = buildTagEntries(u.snap.Tags)

	u.selectedPending = clampIndex(u.selectedPending, len(u.pending))
	u.selectedDone = clampIndex(u.selectedDone, len(u.done))
	u.selectedTags = clampIndex(u.selectedTags, len(u.tags))

	selectedID := ""
	if selected := u.selectedTask(); selected != nil {
		selectedID = selected.ID
	}
	if selectedID != u.historyFor || u.history == nil {
		u.loadHistory(selectedID)
	}
}

func (u *UI) loadHistory(taskID string) {
	u.historyFor = taskID
	if u.journal == nil {
		u.history = []model.HistoryEntry{}
		return
	}

	var (
		history []model.HistoryEntry
		err     error
	)
	if taskID == "" {
		history, err = u.journal.ListRecentHistory(context.Background(), recentHistoryLimit)
	} else {
		history, err = u.journal.ListHistory(context.Background(), taskID)
	}
	if err != nil {
		u.logger.Printf("tui: load history: %v", err)
		history = nil
	}
	if history == nil {
		history = []model.HistoryEntry{}
	}
	u.history = history
	u.selectedHistory = clampIndex(u.selectedHistory, len(u.history))
}

// run performs action off the UI loop and reports its outcome in the
// footer. Without a gui it runs inline.
func (u *UI) run(action func(ctx context.Context) error) {
	if u.gui == nil {
		u.finish(action(context.Background()))
		return
	}
	go func() {
		err := action(context.Background())
		u.gui.Update(func(*gocui.Gui) error {
			u.finish(err)
			return nil
		})
	}()
}

func (u *UI) finish(err error) {
	if err == nil {
		u.status = ""
		return
	}
	if taskview.AuthRequired(err) {
		u.status = "Session expired. Run `lazytodo signin` and start again."
		return
	}
	u.status = taskview.Message(err)
}

func (u *UI) renderHeader(view *gocui.View) {
	view.Clear()
	filter := u.snap.Filter

	query := strings.TrimSpace(filter.Search)
	if query == "" {
		query = "type / to search"
	}

	viewLabel := "none"
	if u.activeView != "" {
		viewLabel = u.activeView
	}

	tagsLabel := "none"
	if len(filter.TagIDs) > 0 {
		tagsLabel = strings.Join(u.tagNames(filter.TagIDs), ",")
	}

	stats := u.snap.Stats
	fmt.Fprintf(view, "Search: %s | Status: %s | Priority: %s | Tags: %s | Sort: %s | View: %s | %d/%d done (%d%%)",
		query, filter.Status, filter.Priority, tagsLabel, u.snap.Sort.Label(), viewLabel, stats.Completed, stats.Total, stats.Progress)
	if u.snap.Loading {
		fmt.Fprint(view, " | loading...")
	}
}

func (u *UI) renderFooter(view *gocui.View) {
	view.Clear()
	view.SetOrigin(0, 0)
	view.SetCursor(0, 0)

	fmt.Fprintln(view, "a add | e edit | d delete | x toggle | p priority | c chat | n new chat | / search | ? help")
	fmt.Fprintln(view, "s status | f priority filter | o sort | w save view | v next view | V delete view | g clear | r reload | 1-6 panes | q quit")
	switch {
	case u.status != "":
		fmt.Fprint(view, u.status)
	case u.snap.Error != "":
		fmt.Fprint(view, u.snap.Error)
	}
}

func (u *UI) renderTaskList(view *gocui.View, tasks []model.Task, selected int, focused bool) {
	view.Clear()
	if len(tasks) == 0 {
		if u.snap.Loaded {
			fmt.Fprint(view, "  nothing here")
		}
		return
	}
	for i, task := range tasks {
		prefix := " "
		if i == selected {
			if focused {
				prefix = ">"
			} else {
				prefix = "*"
			}
		}
		fmt.Fprintf(view, "%s %s\n", prefix, formatTaskSummary(task))
	}
	if focused {
		view.SetCursor(0, min(selected, len(tasks)-1))
	}
}

func (u *UI) renderTags(view *gocui.View) {
	view.Clear()
	for index, entry := range u.tags {
		prefix := " "
		if index == u.selectedTags {
			prefix = ">"
		}
		marker := " "
		if u.snap.Filter.HasTag(entry.ID) {
			marker = "x"
		}
		fmt.Fprintf(view, "%s [%s] %s (%d)\n", prefix, marker, entry.Name, entry.Count)
	}
	if u.focus == viewTags {
		view.SetCursor(0, min(u.selectedTags, len(u.tags)-1))
	}
}

func (u *UI) renderDetail(view *gocui.View) {
	view.Clear()

	lines := []string{}
	if u.focus == viewHistory {
		if entry := u.selectedHistoryEntry(); entry != nil {
			lines = append(lines,
				"History Detail",
				fmt.Sprintf("When: %s", entry.CreatedAt.Local().Format("2006-01-02 15:04:05")),
				fmt.Sprintf("Type: %s", entry.EventType),
				fmt.Sprintf("Details: %s", entry.Details),
				"",
			)
		}
	}

	selected := u.selectedTask()
	if selected == nil {
		lines = append(lines, "No task selected")
		fmt.Fprint(view, strings.Join(lines, "\n"))
		return
	}

	status := "Active"
	if selected.Completed {
		status = "Completed"
	}
	lines = append(lines,
		selected.Title,
		fmt.Sprintf("Status: %s", status),
		fmt.Sprintf("Priority: %s", priorityLabel(selected.Priority)),
		fmt.Sprintf("Due: %s", dueLabel(*selected, time.Now())),
		fmt.Sprintf("Tags: %s", formatTags(selected.Tags)),
	)
	if !selected.CreatedAt.IsZero() {
		lines = append(lines, fmt.Sprintf("Created: %s", selected.CreatedAt.Local().Format("2006-01-02 15:04")))
	}
	lines = append(lines, "", selected.Description)

	fmt.Fprint(view, strings.Join(lines, "\n"))
}

func (u *UI) renderChat(view *gocui.View) {
	view.Clear()
	if u.chat == nil {
		fmt.Fprint(view, "Chat is unavailable")
		return
	}
	transcript := u.chat.Transcript()
	if len(transcript) == 0 {
		fmt.Fprint(view, "Press c to ask the assistant about your tasks")
		return
	}
	for _, msg := range transcript {
		fmt.Fprintln(view, formatChatMessage(msg))
	}
	if u.chat.Sending() {
		fmt.Fprint(view, "ai: ...")
	}
}

func (u *UI) renderHistory(view *gocui.View, focused bool) {
	view.Clear()
	if u.historyFor == "" {
		view.Title = "6 History (recent)"
	} else {
		view.Title = "6 History"
	}
	for index, entry := range u.history {
		prefix := " "
		if index == u.selectedHistory {
			if focused {
				prefix = ">"
			} else {
				prefix = "*"
			}
		}
		fmt.Fprintf(view, "%s %s | %s | %s\n", prefix, entry.CreatedAt.Local().Format("2006-01-02 15:04"), entry.EventType, entry.Details)
	}
	if focused {
		view.SetCursor(0, min(u.selectedHistory, len(u.history)-1))
	}
}

func (u *UI) onListClick(gui *gocui.Gui, viewName string, opts gocui.ViewMouseBindingOpts) error {
	if u.inputActive() {
		return nil
	}
	view, err := gui.View(viewName)
	if err != nil {
		return nil
	}

	_, y0, _, _ := view.Dimensions()
	_, oy := view.Origin()
	row := max(opts.Y-y0-1+oy, 0)

	switch viewName {
	case viewPending:
		u.selectedPending = min(row, len(u.pending)-1)
	case viewDone:
		u.selectedDone = min(row, len(u.done)-1)
	case viewTags:
		u.selectedTags = min(row, len(u.tags)-1)
	case viewHistory:
		u.selectedHistory = min(row, len(u.history)-1)
	default:
		return nil
	}
	return u.setFocus(gui, viewName)
}

func (u *UI) bindMouseScroll(gui *gocui.Gui) error {
	views := []string{viewPending, viewDone, viewTags, viewHistory, viewDetail, viewChat}
	for _, name := range views {
		if err := gui.SetKeybinding(name, gocui.MouseWheelUp, gocui.ModNone, u.scrollUp); err != nil {
			return err
		}
		if err := gui.SetKeybinding(name, gocui.MouseWheelDown, gocui.ModNone, u.scrollDown); err != nil {
			return err
		}
	}
	return nil
}

func (u *UI) scrollUp(gui *gocui.Gui, view *gocui.View) error {
	if u.inputActive() {
		return nil
	}
	if view == nil {
		view = gui.CurrentView()
	}
	if view == nil {
		return nil
	}
	view.ScrollUp(1)
	return nil
}

func (u *UI) scrollDown(gui *gocui.Gui, view *gocui.View) error {
	if u.inputActive() {
		return nil
	}
	if view == nil {
		view = gui.CurrentView()
	}
	if view == nil {
		return nil
	}
	view.ScrollDown(1)
	return nil
}

func (u *UI) selectedHistoryEntry() *model.HistoryEntry {
	if u.selectedHistory >= 0 && u.selectedHistory < len(u.history) {
		return &u.history[u.selectedHistory]
	}
	return nil
}

func (u *UI) selectedTask() *model.Task {
	if u.focus == viewDone {
		return u.taskIn(viewDone)
	}
	return u.taskIn(viewPending)
}

func (u *UI) taskIn(pane string) *model.Task {
	if pane == viewDone {
		if u.selectedDone >= 0 && u.selectedDone < len(u.done) {
			return &u.done[u.selectedDone]
		}
		return nil
	}
	if u.selectedPending >= 0 && u.selectedPending < len(u.pending) {
		return &u.pending[u.selectedPending]
	}
	return nil
}

func (u *UI) switchFocus(gui *gocui.Gui, _ *gocui.View) error {
	if u.inputActive() {
		return nil
	}

	switch u.focus {
	case viewPending:
		u.focus = viewDone
	case viewDone:
		u.focus = viewTags
	case viewTags:
		u.focus = viewChat
	case viewChat:
		u.focus = viewHistory
	default:
		u.focus = viewPending
	}
	u.restoreFocus(gui)
	return nil
}

func (u *UI) focusPending(gui *gocui.Gui, _ *gocui.View) error {
	return u.setFocus(gui, viewPending)
}

func (u *UI) focusDone(gui *gocui.Gui, _ *gocui.View) error {
	return u.setFocus(gui, viewDone)
}

func (u *UI) focusTags(gui *gocui.Gui, _ *gocui.View) error {
	return u.setFocus(gui, viewTags)
}

func (u *UI) focusDetail(gui *gocui.Gui, _ *gocui.View) error {
	return u.setFocus(gui, viewDetail)
}

func (u *UI) focusChat(gui *gocui.Gui, _ *gocui.View) error {
	return u.setFocus(gui, viewChat)
}

func (u *UI) focusHistory(gui *gocui.Gui, _ *gocui.View) error {
	return u.setFocus(gui, viewHistory)
}

func (u *UI) setFocus(gui *gocui.Gui, name string) error {
	if u.inputActive() {
		return nil
	}
	u.focus = name
	u.restoreFocus(gui)
	return nil
}

// restoreFocus hands the keyboard back to the focused pane after a popup
// closes.
func (u *UI) restoreFocus(gui *gocui.Gui) {
	if u.focus == viewPending || u.focus == viewDone {
		u.taskPane = u.focus
	}
	if gui == nil {
		return
	}
	_, _ = gui.SetCurrentView(u.focus)
}

func (u *UI) closePopup(gui *gocui.Gui, name string) {
	if gui == nil {
		return
	}
	_ = gui.DeleteView(name)
	u.restoreFocus(gui)
}

func (u *UI) moveDown(gui *gocui.Gui, _ *gocui.View) error {
	if u.inputActive() {
		return nil
	}
	switch u.focus {
	case viewDone:
		if u.selectedDone < len(u.done)-1 {
			u.selectedDone++
		}
	case viewPending:
		if u.selectedPending < len(u.pending)-1 {
			u.selectedPending++
		}
	case viewHistory:
		if u.selectedHistory < len(u.history)-1 {
			u.selectedHistory++
		}
	case viewTags:
		if u.selectedTags < len(u.tags)-1 {
			u.selectedTags++
		}
	}
	return nil
}

func (u *UI) moveUp(gui *gocui.Gui, _ *gocui.View) error {
	if u.inputActive() {
		return nil
	}
	switch u.focus {
	case viewDone:
		if u.selectedDone > 0 {
			u.selectedDone--
		}
	case viewPending:
		if u.selectedPending > 0 {
			u.selectedPending--
		}
	case viewHistory:
		if u.selectedHistory > 0 {
			u.selectedHistory--
		}
	case viewTags:
		if u.selectedTags > 0 {
			u.selectedTags--
		}
	}
	return nil
}

func (u *UI) reload(gui *gocui.Gui, _ *gocui.View) error {
	if u.inputActive() {
		return nil
	}
	u.status = ""
	u.history = nil
	u.run(func(ctx context.Context) error {
		if _, err := u.tasks.LoadTags(ctx); err != nil {
			return err
		}
		return u.tasks.Reload(ctx)
	})
	return nil
}

func (u *UI) clearFilters(gui *gocui.Gui, _ *gocui.View) error {
	if u.inputActive() {
		return nil
	}
	u.activeView = ""
	u.run(u.tasks.ClearFilters)
	return nil
}

func (u *UI) refreshHistory(gui *gocui.Gui, _ *gocui.View) error {
	if u.inputActive() {
		return nil
	}
	u.loadHistory(u.historyFor)
	return nil
}

func (u *UI) cycleStatusFilter(gui *gocui.Gui, _ *gocui.View) error {
	if u.inputActive() {
		return nil
	}
	filter := u.tasks.Snapshot().Filter
	filter.Status = filter.Status.Next()
	u.run(func(ctx context.Context) error { return u.tasks.SetFilter(ctx, filter) })
	return nil
}

func (u *UI) cyclePriorityFilter(gui *gocui.Gui, _ *gocui.View) error {
	if u.inputActive() {
		return nil
	}
	filter := u.tasks.Snapshot().Filter
	filter.Priority = filter.Priority.Next()
	u.run(func(ctx context.Context) error { return u.tasks.SetFilter(ctx, filter) })
	return nil
}

func (u *UI) cycleSort(gui *gocui.Gui, _ *gocui.View) error {
	if u.inputActive() {
		return nil
	}
	next := u.tasks.Snapshot().Sort.Next()
	u.run(func(ctx context.Context) error { return u.tasks.SetSort(ctx, next) })
	return nil
}

func (u *UI) startSearch(gui *gocui.Gui, _ *gocui.View) error {
	if u.inputActive() {
		return nil
	}
	u.searchActive = true
	return nil
}

func (u *UI) toggleHelp(gui *gocui.Gui, _ *gocui.View) error {
	if u.inputActive() && !u.helpActive {
		return nil
	}
	u.helpActive = !u.helpActive
	return nil
}

func (u *UI) closeHelp(gui *gocui.Gui, _ *gocui.View) error {
	u.helpActive = false
	u.closePopup(gui, viewHelp)
	return nil
}

func (u *UI) showHelp(gui *gocui.Gui) error {
	maxX, maxY := gui.Size()
	width := max(60, maxX/2)
	height := min(26, max(maxY-4, 8))
	x0 := (maxX - width) / 2
	y0 := (maxY - height) / 2

	view, err := gui.SetView(viewHelp, x0, y0, x0+width, y0+height, 0)
	if err != nil && !goerrors.Is(err, gocui.ErrUnknownView) {
		return err
	}
	if goerrors.Is(err, gocui.ErrUnknownView) {
		view.Title = "Help"
		view.Wrap = true
	}
	view.Clear()
	fmt.Fprint(view, helpText())
	_, _ = gui.SetCurrentView(viewHelp)
	return nil
}

func (u *UI) showSearch(gui *gocui.Gui) error {
	maxX, maxY := gui.Size()
	width := max(30, maxX/2)
	height := 3
	x0 := (maxX - width) / 2
	y0 := (maxY - height) / 2

	view, err := gui.SetView(viewSearch, x0, y0, x0+width, y0+height, 0)
	if err != nil && !goerrors.Is(err, gocui.ErrUnknownView) {
		return err
	}
	if goerrors.Is(err, gocui.ErrUnknownView) {
		view.Title = "Search (enter to apply now)"
		view.Wrap = true
		view.Clear()
		search := u.tasks.Snapshot().Filter.Search
		fmt.Fprint(view, search)
		view.SetCursor(len([]rune(search)), 0)
	}
	view.Editable = true
	view.Editor = &searchEditor{ui: u}
	_, _ = gui.SetCurrentView(viewSearch)
	return nil
}

// Edit applies the keystroke and feeds the buffer to the debounced search.
func (e *searchEditor) Edit(view *gocui.View, key gocui.Key, ch rune, mod gocui.Modifier) bool {
	handled := gocui.DefaultEditor.Edit(view, key, ch, mod)
	e.ui.onSearchInput(strings.TrimRight(view.Buffer(), "\n"))
	return handled
}

func (u *UI) onSearchInput(text string) {
	u.tasks.SetSearch(text)
}

func (u *UI) submitSearch(gui *gocui.Gui, _ *gocui.View) error {
	u.searchActive = false
	u.status = ""
	u.closePopup(gui, viewSearch)
	u.run(u.tasks.FlushSearch)
	return nil
}

func (u *UI) cancelSearch(gui *gocui.Gui, _ *gocui.View) error {
	u.searchActive = false
	u.closePopup(gui, viewSearch)
	return nil
}

func (u *UI) addTask(gui *gocui.Gui, _ *gocui.View) error {
	if u.inputActive() {
		return nil
	}
	u.form = &formState{fields: buildFormFields(nil)}
	u.formTagIndex = 0
	return nil
}

func (u *UI) editTask(gui *gocui.Gui, _ *gocui.View) error {
	if u.inputActive() {
		return nil
	}
	selected := u.selectedTask()
	if selected == nil {
		return nil
	}
	task := *selected
	u.form = &formState{task: &task, fields: buildFormFields(&task)}
	u.formTagIndex = 0
	return nil
}

func (u *UI) showForm(gui *gocui.Gui) error {
	if u.form == nil {
		return nil
	}

	maxX, maxY := gui.Size()
	width := max(60, maxX/2)
	height := min(10, max(8, maxY/2))
	x0 := (maxX - width) / 2
	y0 := (maxY - height) / 2

	view, err := gui.SetView(viewForm, x0, y0, x0+width, y0+height, 0)
	if err != nil && !goerrors.Is(err, gocui.ErrUnknownView) {
		return err
	}
	if goerrors.Is(err, gocui.ErrUnknownView) {
		view.Wrap = true
	}
	if u.form.task != nil {
		view.Title = "Edit Task"
	} else {
		view.Title = "New Task"
	}
	view.Editable = true
	view.KeybindOnEdit = true
	view.Editor = u.formEditor
	u.renderForm(view)
	_, _ = gui.SetCurrentView(viewForm)
	return nil
}

func (u *UI) submitFormNow(gui *gocui.Gui, _ *gocui.View) error {
	if u.form == nil {
		return nil
	}

	input, err := parseFormFields(u.form.fields, u.tasks.Snapshot().Tags)
	if err != nil {
		u.status = err.Error()
		return nil
	}

	original := u.form.task
	u.form = nil
	u.status = ""
	u.closePopup(gui, viewForm)

	if original == nil {
		u.run(func(ctx context.Context) error {
			_, err := u.tasks.Create(ctx, input.createRequest())
			return err
		})
		return nil
	}

	taskID := original.ID
	req, clearDue := input.updateRequest(*original)
	u.run(func(ctx context.Context) error {
		if _, err := u.tasks.Update(ctx, taskID, req); err != nil {
			return err
		}
		if clearDue {
			if _, err := u.tasks.SetDueDate(ctx, taskID, ""); err != nil {
				return err
			}
		}
		return nil
	})
	return nil
}

func (u *UI) cancelForm(gui *gocui.Gui, _ *gocui.View) error {
	u.form = nil
	u.closePopup(gui, viewForm)
	return nil
}

func (u *UI) nextFormField(gui *gocui.Gui, view *gocui.View) error {
	if u.form == nil {
		return nil
	}
	if u.form.index < len(u.form.fields)-1 {
		u.form.index++
	}
	u.renderForm(view)
	return nil
}

func (u *UI) prevFormField(gui *gocui.Gui, view *gocui.View) error {
	if u.form == nil {
		return nil
	}
	if u.form.index > 0 {
		u.form.index--
	}
	u.renderForm(view)
	return nil
}

func (u *UI) renderForm(view *gocui.View) {
	if u.form == nil || view == nil {
		return
	}
	view.Clear()
	for index, field := range u.form.fields {
		prefix := "  "
		if index == u.form.index {
			prefix = "> "
		}
		value := field.Value
		if index == fieldTags {
			if candidate := u.currentTagOption(); candidate != "" {
				value = fmt.Sprintf("%s [pick: %s]", value, candidate)
			}
		}
		if index == fieldPriority && value == "" {
			value = "default"
		}
		fmt.Fprintf(view, "%s%s: %s\n", prefix, field.Label, value)
	}
	label := u.form.fields[u.form.index].Label + ": "
	cursorX := len([]rune(label)) + len([]rune(u.form.fields[u.form.index].Value)) + 2
	view.SetCursor(cursorX, u.form.index)
}

func (e *formEditor) Edit(view *gocui.View, key gocui.Key, ch rune, mod gocui.Modifier) bool {
	ui := e.ui
	if ui == nil || ui.form == nil || view == nil {
		return false
	}
	field := &ui.form.fields[ui.form.index]

	switch ui.form.index {
	case fieldPriority:
		switch key {
		case gocui.KeyArrowRight, gocui.KeySpace:
			field.Value = cycleChoice(priorityChoices, field.Value, 1)
		case gocui.KeyArrowLeft:
			field.Value = cycleChoice(priorityChoices, field.Value, -1)
		}
		ui.renderForm(view)
		return true
	case fieldTags:
		switch key {
		case gocui.KeyArrowRight:
			ui.formTagIndex = min(ui.formTagIndex+1, len(ui.tagOptions())-1)
		case gocui.KeyArrowLeft:
			ui.formTagIndex = max(ui.formTagIndex-1, 0)
		case gocui.KeySpace:
			ui.toggleTagInField(field)
		case gocui.KeyBackspace, gocui.KeyBackspace2, gocui.KeyCtrlU:
			field.Value = ""
		}
		ui.renderForm(view)
		return true
	}

	switch key {
	case gocui.KeyBackspace, gocui.KeyBackspace2:
		runes := []rune(field.Value)
		if len(runes) > 0 {
			field.Value = string(runes[:len(runes)-1])
		}
	case gocui.KeySpace:
		field.Value += " "
	case gocui.KeyCtrlU:
		field.Value = ""
	}

	if ch != 0 && ch != '\n' && ch != '\r' && mod == 0 {
		field.Value += string(ch)
	}

	ui.renderForm(view)
	return true
}

func (u *UI) tagOptions() []string {
	result := make([]string, 0, len(u.tags))
	for _, entry := range u.tags {
		result = append(result, entry.Name)
	}
	return result
}

func (u *UI) currentTagOption() string {
	options := u.tagOptions()
	if len(options) == 0 {
		return ""
	}
	u.formTagIndex = clampIndex(u.formTagIndex, len(options))
	return options[u.formTagIndex]
}

func (u *UI) toggleTagInField(field *formField) {
	current := u.currentTagOption()
	if current == "" {
		return
	}

	selected := make(map[string]struct{})
	for _, name := range parseTags(field.Value) {
		selected[name] = struct{}{}
	}
	if _, ok := selected[current]; ok {
		delete(selected, current)
	} else {
		selected[current] = struct{}{}
	}

	ordered := make([]string, 0, len(selected))
	for name := range selected {
		ordered = append(ordered, name)
	}
	sort.Strings(ordered)
	field.Value = strings.Join(ordered, ", ")
}

func (u *UI) deleteTask(gui *gocui.Gui, _ *gocui.View) error {
	if u.inputActive() || u.focus == viewTags {
		return nil
	}
	selected := u.selectedTask()
	if selected == nil {
		return nil
	}
	taskID := selected.ID
	u.run(func(ctx context.Context) error { return u.tasks.Delete(ctx, taskID) })
	return nil
}

func (u *UI) toggleDone(gui *gocui.Gui, _ *gocui.View) error {
	if u.inputActive() {
		return nil
	}
	selected := u.selectedTask()
	if selected == nil {
		return nil
	}
	taskID := selected.ID
	u.run(func(ctx context.Context) error {
		_, err := u.tasks.Toggle(ctx, taskID)
		return err
	})
	return nil
}

func (u *UI) cycleTaskPriority(gui *gocui.Gui, _ *gocui.View) error {
	if u.inputActive() {
		return nil
	}
	selected := u.selectedTask()
	if selected == nil {
		return nil
	}
	taskID := selected.ID
	next := nextTaskPriority(selected.Priority)
	u.run(func(ctx context.Context) error {
		_, err := u.tasks.SetPriority(ctx, taskID, next)
		return err
	})
	return nil
}

func (u *UI) toggleTagFilter(gui *gocui.Gui, _ *gocui.View) error {
	if u.inputActive() || u.focus != viewTags {
		return nil
	}
	if u.selectedTags < 0 || u.selectedTags >= len(u.tags) {
		return nil
	}
	filter := u.tasks.Snapshot().Filter.ToggleTag(u.tags[u.selectedTags].ID)
	u.run(func(ctx context.Context) error { return u.tasks.SetFilter(ctx, filter) })
	return nil
}

func (u *UI) openTagCreate(gui *gocui.Gui, _ *gocui.View) error {
	if u.inputActive() || u.focus != viewTags {
		return nil
	}
	u.prompt = &promptState{kind: promptTag}
	return nil
}

func (u *UI) deleteTag(gui *gocui.Gui, _ *gocui.View) error {
	if u.inputActive() || u.focus != viewTags {
		return nil
	}
	if u.selectedTags < 0 || u.selectedTags >= len(u.tags) {
		return nil
	}
	tagID := u.tags[u.selectedTags].ID
	u.run(func(ctx context.Context) error { return u.tasks.DeleteTag(ctx, tagID) })
	return nil
}

func (u *UI) openTagRename(gui *gocui.Gui, _ *gocui.View) error {
	if u.inputActive() || u.focus != viewTags {
		return nil
	}
	if u.selectedTags < 0 || u.selectedTags >= len(u.tags) {
		return nil
	}
	entry := u.tags[u.selectedTags]
	u.prompt = &promptState{kind: promptRenameTag, value: entry.Name, target: entry.ID}
	return nil
}

// tagTask puts the highlighted tag on the task last selected in a task
// pane, or takes it off when the task already has it.
func (u *UI) tagTask(gui *gocui.Gui, _ *gocui.View) error {
	if u.inputActive() || u.focus != viewTags {
		return nil
	}
	if u.selectedTags < 0 || u.selectedTags >= len(u.tags) {
		return nil
	}
	task := u.taskIn(u.taskPane)
	if task == nil {
		u.status = "Select a task first"
		return nil
	}
	taskID, tagID := task.ID, u.tags[u.selectedTags].ID
	u.run(func(ctx context.Context) error {
		_, err := u.tasks.ToggleTaskTag(ctx, taskID, tagID)
		return err
	})
	return nil
}

func (u *UI) openChat(gui *gocui.Gui, _ *gocui.View) error {
	if u.inputActive() || u.chat == nil {
		return nil
	}
	u.focus = viewChat
	u.prompt = &promptState{kind: promptChat}
	return nil
}

func (u *UI) newChat(gui *gocui.Gui, _ *gocui.View) error {
	if u.inputActive() || u.chat == nil {
		return nil
	}
	u.chat.Reset()
	u.status = "Started a new conversation"
	return nil
}

func (u *UI) openSaveView(gui *gocui.Gui, _ *gocui.View) error {
	if u.inputActive() {
		return nil
	}
	u.prompt = &promptState{kind: promptView, value: u.activeView}
	return nil
}

// nextView applies the saved view after the active one, wrapping around.
func (u *UI) nextView(gui *gocui.Gui, _ *gocui.View) error {
	if u.inputActive() {
		return nil
	}
	views, err := u.tasks.ListViews(context.Background())
	if err != nil {
		u.status = err.Error()
		return nil
	}
	if len(views) == 0 {
		u.status = "No saved views yet. Press w to save one."
		return nil
	}

	next := views[0].Name
	for i, view := range views {
		if view.Name == u.activeView {
			next = views[(i+1)%len(views)].Name
			break
		}
	}
	u.activeView = next
	u.run(func(ctx context.Context) error { return u.tasks.ApplyView(ctx, next) })
	return nil
}

func (u *UI) deleteView(gui *gocui.Gui, _ *gocui.View) error {
	if u.inputActive() || u.activeView == "" {
		return nil
	}
	name := u.activeView
	if err := u.tasks.DeleteView(context.Background(), name); err != nil {
		u.status = err.Error()
		return nil
	}
	u.activeView = ""
	u.status = fmt.Sprintf("Deleted view %s", name)
	return nil
}

func (u *UI) showPrompt(gui *gocui.Gui) error {
	maxX, maxY := gui.Size()
	width := max(40, maxX/2)
	height := 3
	x0 := (maxX - width) / 2
	y0 := (maxY - height) / 2

	view, err := gui.SetView(viewPrompt, x0, y0, x0+width, y0+height, 0)
	if err != nil && !goerrors.Is(err, gocui.ErrUnknownView) {
		return err
	}
	if goerrors.Is(err, gocui.ErrUnknownView) {
		view.Wrap = true
		view.Clear()
		fmt.Fprint(view, u.prompt.value)
		view.SetCursor(len([]rune(u.prompt.value)), 0)
	}
	view.Title = promptTitle(u.prompt.kind)
	view.Editable = true
	view.Editor = gocui.DefaultEditor
	_, _ = gui.SetCurrentView(viewPrompt)
	return nil
}

func (u *UI) submitPrompt(gui *gocui.Gui, view *gocui.View) error {
	if u.prompt == nil {
		return nil
	}
	prompt := *u.prompt
	if view != nil {
		prompt.value = view.Buffer()
	}
	value := strings.TrimSpace(prompt.value)
	u.prompt = nil
	u.closePopup(gui, viewPrompt)
	if value == "" {
		return nil
	}

	switch prompt.kind {
	case promptTag:
		u.run(func(ctx context.Context) error {
			_, err := u.tasks.CreateTag(ctx, value)
			return err
		})
	case promptRenameTag:
		u.run(func(ctx context.Context) error {
			_, err := u.tasks.RenameTag(ctx, prompt.target, value)
			return err
		})
	case promptChat:
		u.run(func(ctx context.Context) error {
			_, err := u.chat.Send(ctx, value)
			if err != nil && !taskview.AuthRequired(err) {
				// already in the transcript
				return nil
			}
			return err
		})
	case promptView:
		if _, err := u.tasks.SaveView(context.Background(), value); err != nil {
			u.status = err.Error()
			return nil
		}
		u.activeView = value
		u.status = fmt.Sprintf("Saved view %s", value)
	}
	return nil
}

func (u *UI) cancelPrompt(gui *gocui.Gui, _ *gocui.View) error {
	u.prompt = nil
	u.closePopup(gui, viewPrompt)
	return nil
}

func (u *UI) tagNames(ids []string) []string {
	names := make([]string, 0, len(ids))
	for _, id := range ids {
		name := id
		for _, tag := range u.snap.Tags {
			if tag.ID == id {
				name = tag.Name
				break
			}
		}
		names = append(names, name)
	}
	return names
}

func (u *UI) inputActive() bool {
	return u.searchActive || u.form != nil || u.helpActive || u.prompt != nil
}

func (u *UI) quit(_ *gocui.Gui, _ *gocui.View) error {
	return gocui.ErrQuit
}

func promptTitle(kind promptKind) string {
	switch kind {
	case promptTag:
		return "New Tag"
	case promptRenameTag:
		return "Rename Tag"
	case promptChat:
		return "Ask the assistant"
	default:
		return "Save View As"
	}
}

func helpText() string {
	return strings.Join([]string{
		"Navigation:",
		"  Tab cycle panes",
		"  1 Active | 2 Completed | 3 Tags | 4 Detail | 5 Chat | 6 History",
		"  j/k or arrows move selection",
		"  mouse click to focus/select, wheel scrolls",
		"",
		"Tasks:",
		"  a add | e edit | d delete | x toggle complete | p cycle priority",
		"  enter save (form) | tab next field | space/left/right pick (form)",
		"",
		"Search/Filter:",
		"  / search as you type | s status | f priority | o sort | g clear",
		"  w save view | v next view | V delete view",
		"",
		"Tags pane:",
		"  space toggle tag filter | a add tag | d delete tag",
		"  R rename tag | t add/remove tag on the selected task",
		"",
		"Chat:",
		"  c ask the assistant | n new conversation",
		"",
		"Other:",
		"  h refresh history | r reload | ? help | esc/q close help | q quit",
	}, "\n")
}

func applyViewStyle(view *gocui.View, focused bool, highlight bool) {
	view.Frame = true
	view.Highlight = focused && highlight
	view.HighlightInactive = false
	view.SelBgColor = gocui.ColorBlue
	view.SelFgColor = gocui.ColorBlack
	view.InactiveViewSelBgColor = gocui.ColorDefault
	if focused {
		view.FrameColor = gocui.ColorCyan
		view.TitleColor = gocui.ColorCyan
	} else {
		view.FrameColor = gocui.ColorDefault
	}
}

func clampIndex(index, length int) int {
	if index >= length {
		index = length - 1
	}
	return max(index, 0)
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

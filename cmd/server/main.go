package main

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/babulele/AgroMarketHub-sub000/configs"
	"github.com/babulele/AgroMarketHub-sub000/internal/auction"
	"github.com/babulele/AgroMarketHub-sub000/internal/auth"
	"github.com/babulele/AgroMarketHub-sub000/internal/broker"
	"github.com/babulele/AgroMarketHub-sub000/internal/cache"
	"github.com/babulele/AgroMarketHub-sub000/internal/catalog"
	"github.com/babulele/AgroMarketHub-sub000/internal/database"
	"github.com/babulele/AgroMarketHub-sub000/internal/handlers/rest"
	"github.com/babulele/AgroMarketHub-sub000/internal/handlers/websocket"
	"github.com/babulele/AgroMarketHub-sub000/pkg/types"
	"github.com/babulele/AgroMarketHub-sub000/pkg/utils"
	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
)

var (
	helpStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	baseStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.NormalBorder()).
			BorderForeground(lipgloss.Color("240"))
	store    auction.Store
	bidCache *cache.BidCache
)

type tickMsg time.Time

func tick() tea.Cmd {
	return tea.Every(15*time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Dashboard model: a table of live auctions plus a scrollable log view.
type model struct {
	table     table.Model
	viewport  viewport.Model
	logBuffer *bytes.Buffer
	logs      []string
	showTable bool
	quitting  bool
}

func (m model) Init() tea.Cmd {
	return tick()
}

func auctionRows() []table.Row {
	auctions, err := store.ListAuctions(context.Background(), auction.Filter{
		Status:  types.StatusActive,
		PerPage: 50,
	})
	if err != nil {
		log.Error("Error getting auctions: ", err)
		return nil
	}

	rows := make([]table.Row, 0, len(auctions))
	for _, a := range auctions {
		amount := a.CurrentHighestBid
		leader := "-"
		if a.WinningBuyerID != nil {
			leader = *a.WinningBuyerID
		}
		// Prefer the cached highest bid on the refresh tick; the store
		// values above back any miss.
		if bidCache != nil {
			if cachedAmount, cachedBuyer, ok := bidCache.GetHighest(context.Background(), a.ID); ok {
				amount = cachedAmount
				leader = cachedBuyer
			}
		}

		highest := "-"
		if amount > 0 {
			highest = fmt.Sprintf("KES %d", amount)
		}

		timeLeft := time.Until(a.EndDate)
		timeLeftStr := timeLeft.Round(time.Second).String()
		if timeLeft < 0 {
			timeLeftStr = "Ended"
		}

		rows = append(rows, table.Row{a.ID, a.Title, highest, leader, timeLeftStr})
	}
	return rows
}

func newTable() model {
	columns := []table.Column{
		{Title: "AUCTION ID", Width: 36},
		{Title: "TITLE", Width: 20},
		{Title: "HIGHEST BID", Width: 14},
		{Title: "LEADER", Width: 20},
		{Title: "TIME LEFT", Width: 14},
	}

	t := table.New(
		table.WithColumns(columns),
		table.WithRows(auctionRows()),
		table.WithHeight(10),
	)

	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).
		BorderBottom(true).
		Bold(false)
	s.Selected = s.Selected.
		Foreground(lipgloss.Color("229")).
		Background(lipgloss.Color("57")).
		Bold(false)
	t.SetStyles(s)

	vp := viewport.New(110, 15)
	vp.Style = lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("62")).
		PaddingRight(2)
	return model{table: t, showTable: true, viewport: vp}
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var (
		cmd  tea.Cmd
		cmds []tea.Cmd
	)
	switch msg := msg.(type) {
	case tickMsg:
		if m.showTable {
			m.table.SetRows(auctionRows())
		} else {
			m.logs = nil
			m.logs = append(m.logs, strings.Split(m.logBuffer.String(), "\n")...)
		}
		return m, tick()

	case tea.KeyMsg:
		switch msg.String() {
		case "up":
			if !m.showTable {
				m.viewport.LineUp(1)
			}
		case "down":
			if !m.showTable {
				m.viewport.LineDown(1)
			}
		case "tab":
			m.showTable = !m.showTable
			if !m.showTable {
				m.logs = nil
				m.logs = append(m.logs, strings.Split(m.logBuffer.String(), "\n")...)
			}
		case "q", "ctrl+c", "esc":
			m.quitting = true
			return m, tea.Quit
		}
	}

	if m.showTable {
		m.table, cmd = m.table.Update(msg)
		cmds = append(cmds, cmd)
		return m, tea.Batch(cmds...)
	}
	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

func (m model) View() string {
	if m.quitting {
		return "Bye!\n"
	}
	if m.showTable {
		return baseStyle.Render(m.table.View()) + "\n" + helpStyle.Render("• tab: switch modes • q: exit\n")
	}

	styledLogs := make([]string, len(m.logs))
	copy(styledLogs, m.logs)
	styledLogs = utils.ColorizeLogs(styledLogs)

	// only show last 15 lines of logs
	if len(styledLogs) > 15 {
		styledLogs = styledLogs[len(styledLogs)-15:]
	}

	m.viewport.SetContent(strings.Join(styledLogs, "\n"))
	return m.viewport.View() + "\n" + helpStyle.Render("• tab: switch modes • q: exit\n")
}

func main() {
	cfg, err := configs.LoadConfig()
	if err != nil {
		log.Fatal("Error loading config: ", err)
	}

	port := cfg.Server.Port
	if port == "" {
		port = "8080"
	}

	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = "debug"
	}
	logLevel, err := log.ParseLevel(cfg.Server.LogLevel)
	if err != nil {
		log.Error("Invalid log level: ", err)
	}
	log.SetLevel(logLevel)

	// Redirect logs to the dashboard buffer
	logBuffer := new(bytes.Buffer)
	log.SetOutput(logBuffer)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := database.New(cfg)
	if err != nil {
		log.Fatal("Error connecting to database: ", err)
	}
	defer db.Close()
	if err := db.Migrate(ctx); err != nil {
		log.Fatal("Error applying schema: ", err)
	}
	store = db

	validator := auth.NewValidator(cfg.Auth.SecretKey)
	cat := catalog.NewClient(cfg.Catalog.BaseURL)
	clock := auction.SystemClock

	engine := auction.NewEngine(db, clock)
	hub := websocket.NewHub(engine, validator)

	notifiers := []auction.Notifier{
		auction.NotifierFunc(func(_ context.Context, rec types.Settlement) error {
			hub.AuctionSettled(rec)
			return nil
		}),
	}
	if cfg.Nats.Enabled {
		pub, err := broker.NewSettlementPublisher(cfg.Nats.URL, cfg.Nats.Stream, cfg.Nats.SubjectPrefix)
		if err != nil {
			log.Fatal("Error connecting to NATS: ", err)
		}
		defer pub.Close()
		notifiers = append(notifiers, pub)
	} else {
		notifiers = append(notifiers, auction.LogNotifier())
	}

	if cfg.Redis.Enabled {
		c, err := cache.NewBidCache(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			log.Fatal("Error connecting to Redis: ", err)
		}
		defer c.Close()
		bidCache = c
		engine.Observe(func(a types.Auction, b types.Bid) {
			bidCache.SetHighest(context.Background(), b.AuctionID, b.BuyerID, b.Amount)
		})
		notifiers = append(notifiers, auction.NotifierFunc(func(ctx context.Context, rec types.Settlement) error {
			bidCache.Invalidate(ctx, rec.AuctionID)
			return nil
		}))
	}

	manager := auction.NewManager(db, clock, cat, auction.MultiNotifier(notifiers...))
	hub.SetManager(manager)
	engine.Observe(hub.BidAccepted)

	// Lazy close still guards correctness; the sweep just keeps listings
	// and settlements timely.
	go manager.Run(ctx, cfg.Auction.SweepInterval)

	restHandler := rest.NewHandler(engine, manager, db, validator).
		WithCatalog(cat).
		WithHealth(db)
	router := restHandler.Router()
	router.HandleFunc("/ws/auction", hub.HandleAuctionWebSocket)

	log.Infof("Server started on port %s", port)
	go func() {
		if err := http.ListenAndServe(":"+port, router); err != nil {
			log.Fatal("Failed to start server: ", err)
		}
	}()

	// Start the dashboard
	m := newTable()
	m.logBuffer = logBuffer
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithMouseCellMotion())
	if _, err := p.Run(); err != nil {
		log.Fatalf("Error running dashboard: %v", err)
	}
}

package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	ut "github.com/go-playground/universal-translator"

	"github.com/shibl-edu/shibl/apps/verify/ui"
	"github.com/shibl-edu/shibl/core"
	"github.com/shibl-edu/shibl/core/verification"
	"github.com/shibl-edu/shibl/services/shibl"
)

func main() {
	var (
		email    = flag.String("email", "", "account email the code was sent to")
		flowName = flag.String("flow", "student", "account flow: student, parent or teacher")
		reset    = flag.Bool("reset", false, "run the password-reset flow instead of email verification")
		password = flag.String("password", "", "new password, required with -reset")
		addr     = flag.String("addr", "", "API base URL (defaults to config)")
		lang     = flag.String("lang", "", "display language: ar or en (defaults to config)")
	)
	flag.Parse()

	conf, err := core.NewConfig()
	errAndDie(err)

	if *email == "" {
		flag.Usage()
		os.Exit(2)
	}
	if *reset && *password == "" {
		log.Fatal("-reset requires -password")
	}
	if *addr == "" {
		*addr = conf.API.BaseURL
	}
	if *lang == "" {
		*lang = conf.Language
	}

	var flow shibl.Flow
	switch *flowName {
	case "student":
		flow = shibl.FlowStudents
	case "parent":
		flow = shibl.FlowParents
	case "teacher":
		flow = shibl.FlowTeachers
	default:
		log.Fatalf("unknown flow %q", *flowName)
	}

	broker := core.NewBroker()
	defer broker.Close()
	events, unsubscribe := broker.Subscribe(shibl.TopicVerified)
	defer unsubscribe()

	client, err := shibl.NewClient(shibl.Options{
		BaseURL:  *addr,
		Flow:     flow,
		Language: *lang,
		Timeout:  conf.API.Timeout,
		Broker:   broker,
	})
	errAndDie(err)

	svc := client.VerifyEmailService()
	title := "Email verification"
	if *reset {
		svc = client.PasswordResetService(*password)
		title = "Password reset"
	}

	uni := core.NewUniversalTranslator()
	verification.RegisterMessages(uni)
	var trans ut.Translator
	if t, ok := uni.GetTranslator(*lang); ok {
		trans = t
	} else {
		trans = uni.GetFallback()
	}

	session := verification.NewSession(verification.Options{
		Target:              *email,
		Service:             svc,
		CodeLength:          conf.OTP.CodeLength,
		ResendWindowSeconds: conf.ResendWindowSeconds(string(flow)),
	})

	model := ui.NewModel(ui.Options{
		Session:    session,
		Service:    svc,
		Translator: trans,
		Title:      title,
	})

	finalModel, err := tea.NewProgram(model).Run()
	errAndDie(err)

	m, ok := finalModel.(*ui.Model)
	if !ok || !m.Done() {
		return
	}

	// the verified event carries the identity with the freshly issued token
	id := m.Identity()
	select {
	case ev := <-events:
		if evID, ok := ev.Payload.(verification.Identity); ok {
			id = evID
		}
	default:
	}

	fmt.Printf("verified: %s (%s)\n", id.Email, id.Role)
	if id.Name != "" {
		fmt.Printf("name: %s\n", id.Name)
	}
	if id.Token != "" && !id.TokenExpiry.IsZero() {
		fmt.Printf("session valid until %s\n", id.TokenExpiry.Format(time.RFC1123))
	}
}

func errAndDie(err error) {
	if err != nil {
		log.Fatal(err)
	}
}

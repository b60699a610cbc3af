package finder

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/glasspath/communique/account"
	"github.com/glasspath/communique/mailable"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// ErrNotFound means no SMTP candidate accepted the credentials.
var ErrNotFound = errors.New("account settings could not be found")

// Console lines reported while searching
const (
	msgSMTPEstablished = "SMTP: Connection established!"
	msgSMTPFailed      = "SMTP: Connection failed.."
	msgIMAPEstablished = "IMAP: Connection established!"
	msgIMAPFailed      = "IMAP: Connection failed.."
	msgNotFound        = "Account settings could not be found.."
)

// SMTPTester checks SMTP settings, e.g., *email.Sender.
type SMTPTester interface {
	Test(ctx context.Context, acct *account.Account, password string, timeout time.Duration) error
}

// SentFolderFinder looks up the sent folder, e.g., *mailbox.Client.
type SentFolderFinder interface {
	FindSentFolderPath(ctx context.Context, acct *account.Account, password string, timeout time.Duration) (string, error)
}

// Finder searches for account settings. SMTP is required; IMAP may be nil,
// in which case found accounts have no IMAP settings.
type Finder struct {
	SMTP SMTPTester
	IMAP SentFolderFinder
	// Per connection attempt
	Timeout time.Duration
	// Ports of one host tried at the same time. Values below 2 try
	// one port at a time.
	Concurrency int
	// Receives console lines. May be nil.
	Progress func(line string)

	// Candidates, defaulting to the account package's common values
	SMTPHostPrefixes []string
	SMTPPorts        []int
	IMAPHostPrefixes []string
	IMAPPorts        []int
}

func (f *Finder) report(line string) {
	log.Info().Str("component", "finder").Msg(line)
	if f.Progress != nil {
		f.Progress(line)
	}
}

func orStrings(s, def []string) []string {
	if len(s) == 0 {
		return def
	}
	return s
}

func orInts(s, def []int) []int {
	if len(s) == 0 {
		return def
	}
	return s
}

type outcome int

const (
	// The candidate could not be reached or refused the login
	portFailed outcome = iota
	// The login worked but there was nothing to use, e.g., no sent folder
	portEmpty
	portOK
)

type portResult struct {
	i int
	o outcome
}

func (f *Finder) reportTrying(proto, host string, port int) {
	f.report(fmt.Sprintf("%v: Trying %v on port %v", proto, host, port))
}

// tryPorts runs try for every port index of host and returns the index
// of the first port, in list order, that succeeded, or -1. Attempts on later
// ports are cancelled as soon as an earlier one succeeds.
//
// Lines are reported in list order, as soon as every earlier port has a
// result, so the console reads like a sequential scan.
func (f *Finder) tryPorts(ctx context.Context, proto, host string, ports []int, try func(ctx context.Context, i int) outcome) (int, error) {
	n := len(ports)
	if n == 0 {
		return -1, ctx.Err()
	}
	ctxs := make([]context.Context, n)
	cancels := make([]context.CancelFunc, n)
	for i := range ports {
		ctxs[i], cancels[i] = context.WithCancel(ctx)
	}

	// Buffered so that attempts never wait for the reporting below
	results := make(chan portResult, n)
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		var g errgroup.Group
		limit := f.Concurrency
		if limit < 1 {
			limit = 1
		}
		g.SetLimit(limit)

		for i := range ports {
			i := i
			g.Go(func() error {
				if ctxs[i].Err() != nil {
					results <- portResult{i, portFailed}
					return nil
				}
				o := try(ctxs[i], i)
				if o == portOK {
					for j := i + 1; j < n; j++ {
						cancels[j]()
					}
				}
				results <- portResult{i, o}
				return nil
			})
		}
		g.Wait()
	}()

	done := make([]bool, n)
	outcomes := make([]outcome, n)
	next, winner := 0, -1
	f.reportTrying(proto, host, ports[0])
	for winner < 0 && next < n {
		r := <-results
		if ctx.Err() != nil {
			break
		}
		done[r.i], outcomes[r.i] = true, r.o
		for winner < 0 && next < n && done[next] {
			switch outcomes[next] {
			case portOK:
				winner = next
				continue
			case portFailed:
				if proto == "SMTP" {
					f.report(msgSMTPFailed)
				} else {
					f.report(msgIMAPFailed)
				}
			}
			next++
			if next < n {
				f.reportTrying(proto, host, ports[next])
			}
		}
	}

	for _, c := range cancels {
		c()
	}
	<-finished

	if err := ctx.Err(); err != nil {
		return -1, err
	}
	return winner, nil
}

// Find returns settings for the account with the given address. The
// search stops when ctx is done, returning ctx's error.
func (f *Finder) Find(ctx context.Context, email, password string) (*account.Account, error) {
	if f.SMTP == nil {
		return nil, errors.New("the finder has no SMTP tester")
	}
	domain := mailable.Domain(email)
	if domain == "" {
		return nil, fmt.Errorf("%q has no domain to search", email)
	}
	email = mailable.AddressOf(email)

	smtpPrefixes := orStrings(f.SMTPHostPrefixes, account.CommonSMTPHostPrefixes)
	smtpPorts := orInts(f.SMTPPorts, account.CommonSMTPPorts)

	var smtpConf *account.SMTPConfig
	for _, prefix := range smtpPrefixes {
		host := prefix + domain
		i, err := f.tryPorts(ctx, "SMTP", host, smtpPorts, func(ctx context.Context, i int) outcome {
			port := smtpPorts[i]
			a := &account.Account{
				Name:  email,
				Email: email,
				SMTP: &account.SMTPConfig{
					Host:     host,
					Port:     port,
					Protocol: account.DefaultSMTPProtocol(port),
				},
			}
			if err := f.SMTP.Test(ctx, a, password, f.Timeout); err != nil {
				log.Debug().Err(err).Str("host", host).Int("port", port).Msg("SMTP candidate failed")
				return portFailed
			}
			return portOK
		})
		if err != nil {
			return nil, err
		}
		if i >= 0 {
			smtpConf = &account.SMTPConfig{
				Host:     host,
				Port:     smtpPorts[i],
				Protocol: account.DefaultSMTPProtocol(smtpPorts[i]),
			}
			break
		}
	}

	if smtpConf == nil {
		f.report(msgNotFound)
		return nil, ErrNotFound
	}
	f.report(msgSMTPEstablished)

	acct := &account.Account{
		Name:  email,
		Email: email,
		SMTP:  smtpConf,
	}

	if f.IMAP == nil {
		return acct, nil
	}

	imapConf, err := f.findIMAP(ctx, acct, domain, password)
	if err != nil {
		return nil, err
	}
	acct.IMAP = imapConf
	return acct, nil
}

func (f *Finder) findIMAP(ctx context.Context, acct *account.Account, domain, password string) (*account.IMAPConfig, error) {
	imapPrefixes := orStrings(f.IMAPHostPrefixes, account.CommonIMAPHostPrefixes)
	imapPorts := orInts(f.IMAPPorts, account.CommonIMAPPorts)

	for _, prefix := range imapPrefixes {
		host := prefix + domain
		paths := make([]string, len(imapPorts))
		i, err := f.tryPorts(ctx, "IMAP", host, imapPorts, func(ctx context.Context, i int) outcome {
			port := imapPorts[i]
			a := *acct
			a.IMAP = &account.IMAPConfig{
				Host:     host,
				Port:     port,
				Protocol: account.DefaultIMAPProtocol(port),
			}
			p, err := f.IMAP.FindSentFolderPath(ctx, &a, password, f.Timeout)
			if err != nil {
				log.Debug().Err(err).Str("host", host).Int("port", port).Msg("IMAP candidate failed")
				return portFailed
			}
			if p == "" {
				log.Debug().Str("host", host).Int("port", port).Msg("IMAP login worked but there is no sent folder")
				return portEmpty
			}
			paths[i] = p
			return portOK
		})
		if err != nil {
			return nil, err
		}
		if i >= 0 {
			f.report(msgIMAPEstablished)
			return &account.IMAPConfig{
				Host:           host,
				Port:           imapPorts[i],
				Protocol:       account.DefaultIMAPProtocol(imapPorts[i]),
				SentFolderPath: paths[i],
			}, nil
		}
	}
	return nil, nil
}

package main

import (
	"context"
	"crypto/rand"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/hlandau/dnsval"
	"github.com/hlandau/dnsval/dnsmsg"
	"github.com/hlandau/dnsval/dnssec"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

type options struct {
	transport       string
	server          string
	logLevel        string
	trustAnchorFile string

	tlsCAFile        string
	tlsClientCrtFile string
	tlsClientKeyFile string
	tlsServerName    string

	syslogAddress string
}

func main() {
	var opt options

	root := &cobra.Command{
		Use:           "secdns",
		Short:         "DNS lookup and DNSSEC validation client",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level, err := logrus.ParseLevel(opt.logLevel)
			if err != nil {
				return fmt.Errorf("invalid --log-level %q: %w", opt.logLevel, err)
			}
			dnsval.Log.SetLevel(level)
			if opt.syslogAddress != "" {
				hook, err := dnsval.NewSyslogHook(dnsval.SyslogOptions{Address: opt.syslogAddress, Tag: "secdns"})
				if err != nil {
					return fmt.Errorf("connecting to syslog at %s: %w", opt.syslogAddress, err)
				}
				dnsval.Log.AddHook(hook)
			}
			return nil
		},
	}
	root.PersistentFlags().StringVar(&opt.transport, "transport", "udp", "transport to use: udp|tcp|tls|https|quic|dtls")
	root.PersistentFlags().StringVar(&opt.server, "server", "1.1.1.1:53", "upstream server address")
	root.PersistentFlags().StringVar(&opt.logLevel, "log-level", "warning", "log level: trace|debug|info|warning|error")
	root.PersistentFlags().StringVar(&opt.trustAnchorFile, "trust-anchor-file", "", "TOML file of additional DNSSEC trust anchors")
	root.PersistentFlags().StringVar(&opt.tlsCAFile, "tls-ca-file", "", "CA certificate file for tls/https/quic/dtls transports")
	root.PersistentFlags().StringVar(&opt.tlsClientCrtFile, "tls-client-cert", "", "client certificate file for mutual TLS")
	root.PersistentFlags().StringVar(&opt.tlsClientKeyFile, "tls-client-key", "", "client key file for mutual TLS")
	root.PersistentFlags().StringVar(&opt.tlsServerName, "tls-server-name", "", "server name used for certificate verification")
	root.PersistentFlags().StringVar(&opt.syslogAddress, "syslog-address", "", "forward logs to this syslog address in addition to stderr")

	root.AddCommand(newLookupCmd(&opt))
	root.AddCommand(newVerifyCmd(&opt))

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newLookupCmd(opt *options) *cobra.Command {
	return &cobra.Command{
		Use:   "lookup <name> [type]",
		Short: "Perform a plain DNS lookup",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			name, rrtype := parseQuery(args)
			t, err := newTransport(opt)
			if err != nil {
				return err
			}
			c := dnsval.NewClient(t, nil)

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			msg, err := c.Query(ctx, name, dnsmsg.ClassINET, rrtype)
			if err != nil {
				return err
			}
			printAnswer(msg)
			return nil
		},
	}
}

func newVerifyCmd(opt *options) *cobra.Command {
	return &cobra.Command{
		Use:   "verify <name> [type]",
		Short: "Perform a DNSSEC-validated DNS lookup",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			name, rrtype := parseQuery(args)
			t, err := newTransport(opt)
			if err != nil {
				return err
			}

			anchors := dnssec.NewTrustAnchorStore()
			if err := anchors.LoadDefaultRootAnchor(); err != nil {
				return err
			}
			if opt.trustAnchorFile != "" {
				if err := loadTrustAnchorFile(anchors, opt.trustAnchorFile); err != nil {
					return err
				}
			}

			v := dnssec.NewValidator(anchors, &libQuerier{t})
			c := dnsval.NewClient(t, v)

			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			msg, err := c.SecureQuery(ctx, name, dnsmsg.ClassINET, rrtype)
			if err != nil {
				fmt.Printf("chain: %s\n", proofChain(name))
				return fmt.Errorf("validation failed: %w", err)
			}
			fmt.Printf("chain: %s (validated)\n", proofChain(name))
			printAnswer(msg)
			return nil
		},
	}
}

// libQuerier adapts a dnsval.Transport to dnssec.Querier the same way the
// library's own internal validator construction does, for the case where
// a caller (here, this CLI) has its own trust anchor store to pass in
// instead of using NewValidatorWithDefaultAnchor.
type libQuerier struct {
	t dnsval.Transport
}

func (q *libQuerier) Query(ctx context.Context, name string, rrtype uint16) (*dnsmsg.Message, error) {
	var id [2]byte
	rand.Read(id[:])
	a, err := q.t.Exchange(ctx, &dnsmsg.Message{
		Header:   dnsmsg.Header{ID: uint16(id[0])<<8 | uint16(id[1]), RecursionDesired: true, AuthenticData: true},
		Question: []dnsmsg.Question{{Name: dnsmsg.Fqdn(name), Type: rrtype, Class: dnsmsg.ClassINET}},
		Edns:     &dnsmsg.EDNS{UDPSize: 1500, DNSSECOK: true},
	})
	if err == nil && a.Rcode() != uint16(dnsmsg.RcodeSuccess) {
		return a, dnsval.ErrorResponse{Code: a.Rcode()}
	}
	return a, err
}

func (opt *options) tlsOptions() *dnsval.ClientTLSOptions {
	return &dnsval.ClientTLSOptions{
		CAFile:        opt.tlsCAFile,
		ClientCrtFile: opt.tlsClientCrtFile,
		ClientKeyFile: opt.tlsClientKeyFile,
		ServerName:    opt.tlsServerName,
	}
}

func newTransport(opt *options) (dnsval.Transport, error) {
	switch opt.transport {
	case "udp", "":
		return dnsval.NewUDPTransport("cli-udp", opt.server, dnsval.UDPTransportOptions{}), nil
	case "tcp":
		return dnsval.NewTCPTransport("cli-tcp", opt.server, dnsval.TCPTransportOptions{}), nil
	case "tls":
		return dnsval.NewDoTTransport("cli-tls", opt.server, dnsval.DoTTransportOptions{TLSOptions: opt.tlsOptions()})
	case "https":
		return dnsval.NewDoHTransport("cli-https", opt.server, dnsval.DoHTransportOptions{TLSOptions: opt.tlsOptions()})
	case "quic":
		return dnsval.NewDoQTransport("cli-quic", opt.server, dnsval.DoQTransportOptions{TLSOptions: opt.tlsOptions()})
	case "dtls":
		return dnsval.NewDTLSTransport("cli-dtls", opt.server, dnsval.DTLSTransportOptions{
			CAFile:        opt.tlsCAFile,
			ClientCrtFile: opt.tlsClientCrtFile,
			ClientKeyFile: opt.tlsClientKeyFile,
			ServerName:    opt.tlsServerName,
		})
	default:
		return nil, fmt.Errorf("unknown transport %q", opt.transport)
	}
}

// trustAnchorFile is the shape of the TOML file passed via
// --trust-anchor-file, one [[anchor]] table per DS record.
type trustAnchorFile struct {
	Anchor []struct {
		Zone       string `toml:"zone"`
		KeyTag     uint16 `toml:"key_tag"`
		Algorithm  uint8  `toml:"algorithm"`
		DigestType uint8  `toml:"digest_type"`
		Digest     string `toml:"digest"`
	} `toml:"anchor"`
}

func loadTrustAnchorFile(store *dnssec.TrustAnchorStore, path string) error {
	var f trustAnchorFile
	if _, err := toml.DecodeFile(path, &f); err != nil {
		return fmt.Errorf("reading trust anchor file %s: %w", path, err)
	}
	for _, a := range f.Anchor {
		if err := store.SetAnchor(a.Zone, a.KeyTag, dnssec.Algorithm(a.Algorithm), dnssec.DigestType(a.DigestType), a.Digest); err != nil {
			return fmt.Errorf("anchor for zone %s: %w", a.Zone, err)
		}
	}
	return nil
}

var typeNames = map[string]uint16{
	"A":      dnsmsg.TypeA,
	"AAAA":   dnsmsg.TypeAAAA,
	"NS":     dnsmsg.TypeNS,
	"CNAME":  dnsmsg.TypeCNAME,
	"MX":     dnsmsg.TypeMX,
	"TXT":    dnsmsg.TypeTXT,
	"DS":     dnsmsg.TypeDS,
	"DNSKEY": dnsmsg.TypeDNSKEY,
	"RRSIG":  dnsmsg.TypeRRSIG,
}

func parseQuery(args []string) (name string, rrtype uint16) {
	name = args[0]
	rrtype = dnsmsg.TypeA
	if len(args) > 1 {
		if t, ok := typeNames[args[1]]; ok {
			rrtype = t
		}
	}
	return name, rrtype
}

// proofChain renders the zones visited while walking up from name to the
// root, in the order the validator authenticates them, for display
// alongside the query's pass/fail verdict.
func proofChain(name string) string {
	chain := []string{dnsmsg.Fqdn(name)}
	zone := dnsmsg.Parent(dnsmsg.Fqdn(name))
	for {
		chain = append(chain, zone)
		if dnsmsg.IsRoot(zone) {
			break
		}
		zone = dnsmsg.Parent(zone)
	}
	out := ""
	for i := len(chain) - 1; i >= 0; i-- {
		out += chain[i]
		if i > 0 {
			out += " -> "
		}
	}
	return out
}

func printAnswer(msg *dnsmsg.Message) {
	for _, rr := range msg.Answer {
		fmt.Printf("%s\t%d\tIN\t%v\n", rr.Name, rr.TTL, rr.Data)
	}
}

package alert

import (
	"fmt"
	"strings"
	"time"

	"github.com/chainwatch/go-whale-monitor/entities"
	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var englishPrinter = message.NewPrinter(language.English)

// Formatter renders alert and report messages as Telegram HTML.
type Formatter struct {
	explorerTxURLs map[string]string
	tokenSymbols   map[string]string
}

func NewFormatter(explorerTxURLs, tokenSymbols map[string]string) *Formatter {
	return &Formatter{
		explorerTxURLs: explorerTxURLs,
		tokenSymbols:   tokenSymbols,
	}
}

// TransactionAlert renders one large-transaction notification.
func (f *Formatter) TransactionAlert(tx entities.Transaction) string {
	timeStr := time.Unix(tx.Timestamp, 0).UTC().Format("2006-01-02 15:04:05") + " UTC"
	symbol := f.TokenSymbol(tx.Network)

	amountLine := fmt.Sprintf("%s %s", formatAmount(tx.AmountNative, 4), symbol)
	if tx.AmountUsd.IsPositive() {
		usd := "$" + formatAmount(tx.AmountUsd, 2)
		if !tx.PriceVerified {
			usd = "~" + usd
		}
		amountLine = fmt.Sprintf("%s\n   (%s %s)", usd, formatAmount(tx.AmountNative, 4), symbol)
	}

	var b strings.Builder
	b.WriteString("🚨 <b>Large Transaction Detected!</b>\n\n")
	fmt.Fprintf(&b, "💰 <b>Amount:</b> %s\n\n", amountLine)
	fmt.Fprintf(&b, "🌐 <b>Network:</b> %s\n\n", tx.Network)
	fmt.Fprintf(&b, "📤 <b>From:</b> <code>%s</code>\n", ShortenAddress(tx.Sender))
	fmt.Fprintf(&b, "📥 <b>To:</b> <code>%s</code>\n\n", ShortenAddress(tx.Receiver))
	fmt.Fprintf(&b, "🔗 <b>Transaction:</b> <code>%s</code>\n\n", ShortenHash(tx.TxHash))
	fmt.Fprintf(&b, "🕒 <b>Time:</b> %s", timeStr)

	if link := f.TxURL(tx.Network, tx.TxHash); link != "" {
		fmt.Fprintf(&b, "\n\n🔍 <a href=\"%s\">View on Explorer</a>", link)
	}

	return b.String()
}

// Startup renders the notification sent when monitoring begins.
func (f *Formatter) Startup(networks []string, interval time.Duration) string {
	var b strings.Builder
	b.WriteString("🤖 <b>Transaction Monitor Started</b>\n\n")
	fmt.Fprintf(&b, "Monitoring networks: %s\n", strings.Join(networks, ", "))
	fmt.Fprintf(&b, "Poll interval: %s\n\n", interval)
	b.WriteString("✅ Bot is now active and monitoring...")
	return b.String()
}

// TokenSymbol returns the display symbol for a network's native token.
func (f *Formatter) TokenSymbol(network string) string {
	if symbol, ok := f.tokenSymbols[network]; ok {
		return symbol
	}
	return "TOKEN"
}

// TxURL returns the explorer link for a transaction, or "" when the network
// has no configured explorer.
func (f *Formatter) TxURL(network, txHash string) string {
	prefix := f.explorerTxURLs[network]
	if prefix == "" {
		return ""
	}
	return prefix + txHash
}

// ShortenAddress abbreviates long addresses for display.
func ShortenAddress(address string) string {
	if len(address) > 16 {
		return address[:8] + "..." + address[len(address)-8:]
	}
	return address
}

// ShortenHash abbreviates long transaction hashes for display.
func ShortenHash(txHash string) string {
	if len(txHash) > 24 {
		return txHash[:12] + "..." + txHash[len(txHash)-12:]
	}
	return txHash
}

// FormatAmount renders a decimal with thousands separators.
func FormatAmount(amount decimal.Decimal, places int) string {
	return formatAmount(amount, places)
}

func formatAmount(amount decimal.Decimal, places int) string {
	value, _ := amount.Round(int32(places)).Float64()
	return englishPrinter.Sprintf("%.*f", places, value)
}

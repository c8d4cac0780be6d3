package widget

// Template is a pre-built dashboard.
type Template struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Icon        string   `json:"icon"`
	Widgets     []Config `json:"widgets"`
}

// Configs returns copies of the template's widget configs.
func (t Template) Configs() []Config {
	out := make([]Config, len(t.Widgets))
	for i, c := range t.Widgets {
		out[i] = c.Copy()
	}
	return out
}

const (
	coinbaseRates = "https://api.coinbase.com/v2/exchange-rates?currency="
	coingeckoFour = "https://api.coingecko.com/api/v3/simple/price?ids=bitcoin,ethereum,cardano,solana&vs_currencies=usd"
	exchangeRates = "https://api.exchangerate-api.com/v4/latest/"
)

func polled(name, apiURL string, interval int, mode DisplayMode, fields ...string) Config {
	return Config{
		Name:            name,
		APIURL:          apiURL,
		RefreshInterval: interval,
		DisplayMode:     mode,
		SelectedFields:  fields,
	}
}

var templates = []Template{
	{
		ID:          "crypto-tracker",
		Name:        "Crypto Tracker",
		Description: "Real-time cryptocurrency prices and market data",
		Icon:        "TrendingUp",
		Widgets: []Config{
			polled("Bitcoin Price", coinbaseRates+"BTC", 60, DisplayCard, "data.rates.USD"),
			polled("Ethereum Price", coinbaseRates+"ETH", 60, DisplayCard, "data.rates.USD"),
			polled("Exchange Rates", coinbaseRates+"BTC", 300, DisplayTable, "data.rates"),
		},
	},
	{
		ID:          "stock-monitor",
		Name:        "Stock Monitor",
		Description: "Track market prices and indicators (Note: Alpha Vantage demo key has rate limits)",
		Icon:        "BarChart3",
		Widgets: []Config{
			polled("Major Cryptocurrencies", coingeckoFour, 120, DisplayTable,
				"bitcoin.usd", "ethereum.usd", "cardano.usd", "solana.usd"),
			polled("Bitcoin Price", coinbaseRates+"BTC", 60, DisplayCard,
				"data.rates.USD", "data.rates.EUR", "data.rates.GBP"),
			polled("Ethereum Price", coinbaseRates+"ETH", 60, DisplayCard,
				"data.rates.USD", "data.rates.EUR"),
		},
	},
	{
		ID:          "forex-dashboard",
		Name:        "Forex Dashboard",
		Description: "Monitor currency exchange rates",
		Icon:        "DollarSign",
		Widgets: []Config{
			polled("USD Exchange Rates", exchangeRates+"USD", 30, DisplayTable, "rates"),
		},
	},
	{
		ID:          "economic-calendar",
		Name:        "Economic Calendar",
		Description: "Key economic indicators and market data",
		Icon:        "Calendar",
		Widgets: []Config{
			polled("USD Exchange Rates", exchangeRates+"USD", 3600, DisplayTable, "rates"),
			polled("EUR Exchange Rates", exchangeRates+"EUR", 3600, DisplayTable, "rates"),
			polled("GBP Exchange Rates", exchangeRates+"GBP", 3600, DisplayCard,
				"rates.USD", "rates.EUR", "rates.JPY"),
		},
	},
	{
		ID:          "portfolio-tracker",
		Name:        "Portfolio Tracker",
		Description: "Track cryptocurrency and market performance",
		Icon:        "Briefcase",
		Widgets: []Config{
			polled("Crypto Portfolio", coingeckoFour, 300, DisplayTable,
				"bitcoin.usd", "ethereum.usd", "cardano.usd", "solana.usd"),
			polled("Bitcoin Price History", coinbaseRates+"BTC", 300, DisplayCard,
				"data.rates.USD", "data.rates.EUR", "data.rates.GBP"),
			polled("Multi Asset Prices",
				"https://api.coingecko.com/api/v3/simple/price?ids=bitcoin,ethereum&vs_currencies=usd,eur",
				300, DisplayCard, "bitcoin.usd", "ethereum.usd", "bitcoin.eur", "ethereum.eur"),
		},
	},
}

// Templates returns the built-in templates.
func Templates() []Template {
	out := make([]Template, len(templates))
	for i, t := range templates {
		out[i] = t
		out[i].Widgets = t.Configs()
	}
	return out
}

// FindTemplate looks up a built-in template by ID.
func FindTemplate(id string) (Template, bool) {
	for _, t := range templates {
		if t.ID == id {
			t.Widgets = t.Configs()
			return t, true
		}
	}
	return Template{}, false
}

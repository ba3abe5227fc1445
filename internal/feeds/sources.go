package feeds

// DefaultSources returns the reference source list in declaration order.
// Order matters: when the batch cap is hit, earlier sources win.
func DefaultSources() []Source {
	return []Source{
		// Kenyan publishers
		{Name: "The Standard", URL: "https://www.standardmedia.co.ke/kenya/rss.xml", Format: FormatRSS},
		{Name: "Nation", URL: "https://rss.nation.africa/rss.xml", Format: FormatRSS},
		{Name: "The EastAfrican", URL: "https://www.theeastafrican.co.ke/rss.xml", Format: FormatRSS},
		{Name: "KBC", URL: "https://www.kbc.co.ke/feed/", Format: FormatRSS},

		// Regional and international
		{Name: "MSN News", URL: "https://www.msn.com/en-xl/feeds/news", Format: FormatRSS},
		{Name: "AllAfrica Kenya", URL: "https://allafrica.com/tools/headlines/rdf/kenya/headlines.rdf", Format: FormatRDF},
		{Name: "BBC Africa", URL: "https://www.bbc.co.uk/feeds/rss/africa.xml", Format: FormatRSS},
		{Name: "Al Jazeera", URL: "https://www.aljazeera.com/xml/rss/all.xml", Format: FormatRSS},
	}
}

package service

type GuideItem struct {
	Title   string `json:"title"`
	Icon    string `json:"icon"`
	Content string `json:"content"`
}

type Guide struct {
	Title   string      `json:"title"`
	Intro   string      `json:"intro"`
	Items   []GuideItem `json:"items"`
	Contact string      `json:"contact"`
}

var guide = Guide{
	Title: "Wichtige Informationen zu Matched Betting",
	Intro: "Willkommen beim Betclever Matched Betting Service. Dieser Leitfaden enthält wichtige Informationen zum Prozess " +
		"und alles, was Sie wissen müssen, um erfolgreich mit Matched Betting zu starten.",
	Items: []GuideItem{
		{
			Title: "Matched Betting verstehen",
			Icon:  "book-open",
			Content: "Matched Betting ist eine Technik, mit der man Wettanbieter-Boni und -Angebote in garantierten Gewinn umwandeln kann. " +
				"Es basiert auf mathematischen Gleichungen, nicht auf Glück oder Spielwissen.",
		},
		{
			Title: "Datenschutz & Sicherheit",
			Icon:  "lock",
			Content: "Ihre Daten werden verschlüsselt gespeichert und nur für den Matched Betting Prozess verwendet. " +
				"Wir geben Ihre Daten niemals an Dritte weiter.",
		},
		{
			Title: "Kontoregistrierung",
			Icon:  "credit-card",
			Content: "Für den Matched Betting Prozess benötigen wir Zugang zu Ihrem Bankkonto. " +
				"Dieser Zugang wird nur für die Dauer des Prozesses gewährt und danach wieder aufgehoben.",
		},
		{
			Title: "Wichtige Hinweise",
			Icon:  "alert-triangle",
			Content: "Laden Sie Ihre Dokumente erst hoch, nachdem Sie Ihr Bankkonto eröffnet haben. " +
				"Stellen Sie sicher, dass alle Dokumente gut lesbar sind, um Verzögerungen zu vermeiden.",
		},
		{
			Title:   "Häufig gestellte Fragen",
			Icon:    "help-circle",
			Content: "Finden Sie Antworten auf die häufigsten Fragen zu unserem Matched Betting Service.",
		},
	},
	Contact: "support@betclever.de",
}

// Guide returns the static onboarding guide shown in the user console.
func (s *Service) Guide() Guide {
	out := guide
	out.Items = append([]GuideItem(nil), guide.Items...)
	return out
}

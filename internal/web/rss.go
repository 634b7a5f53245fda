package web

import (
	"bytes"
	"encoding/xml"
	"log"
	"net/http"
)

// RSS 2.0 document structure.
type rssDoc struct {
	XMLName xml.Name   `xml:"rss"`
	Version string     `xml:"version,attr"`
	Channel rssChannel `xml:"channel"`
}

type rssChannel struct {
	Title       string    `xml:"title"`
	Link        string    `xml:"link"`
	Description string    `xml:"description"`
	Image       *rssImage `xml:"image,omitempty"`
	Items       []rssItem `xml:"item"`
}

type rssImage struct {
	URL   string `xml:"url"`
	Title string `xml:"title"`
	Link  string `xml:"link"`
}

type rssItem struct {
	Title       string   `xml:"title"`
	Link        string   `xml:"link"`
	GUID        string   `xml:"guid"`
	PubDate     string   `xml:"pubDate"`
	Author      string   `xml:"author,omitempty"`
	Categories  []string `xml:"category,omitempty"`
	Description rssCDATA `xml:"description"`
}

type rssCDATA struct {
	Text string `xml:",cdata"`
}

// writeRSS renders a feed page as RSS 2.0. Item descriptions reuse the post
// body template so readers see the same content as the HTML pages.
func (h *Handler) writeRSS(w http.ResponseWriter, page *feedPage) {
	channel := rssChannel{
		Title:       page.Title,
		Link:        page.Link,
		Description: page.Info,
	}
	if page.Avatar != "" {
		channel.Image = &rssImage{URL: page.Avatar, Title: page.Title, Link: page.Link}
	}

	for i := range page.Posts {
		post := &page.Posts[i]

		var body bytes.Buffer
		if err := h.templates.ExecuteTemplate(&body, "rss_item.html", post); err != nil {
			log.Printf("[Web] failed to render rss item %s: %v", post.ID, err)
			continue
		}

		channel.Items = append(channel.Items, rssItem{
			Title:       post.Title,
			Link:        post.Link,
			GUID:        post.Link,
			PubDate:     post.DateRSS,
			Author:      post.AuthorRSS,
			Categories:  post.Categories,
			Description: rssCDATA{Text: body.String()},
		})
	}

	out, err := xml.MarshalIndent(rssDoc{Version: "2.0", Channel: channel}, "", "  ")
	if err != nil {
		http.Error(w, "failed to build feed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/rss+xml; charset=utf-8")
	w.Write([]byte(xml.Header))
	w.Write(out)
}

package command

import (
	"html/template"
	"strings"
)

// card is one directory entry rendered in the /group_list HTML reply.
type card struct {
	Name    string
	Topic   string
	ID      string // g<chat id> or c<channel id>
	LastPub string // channels only, empty for groups
	BotAddr string
	Count   int
}

// cardListHTML renders the directory as self-contained HTML cards with
// mailto links that pre-fill the join/leave commands, so a recipient can act
// from any client that renders HTML.
const cardListHTML = `
<style>
.w3-card-2{box-shadow:0 2px 4px 0 rgba(0,0,0,0.16),0 2px 10px 0 rgba(0,0,0,0.12) !important; margin-bottom: 15px;}
.w3-btn{border:none;display:inline-block;outline:0;padding:6px 16px;vertical-align:middle;overflow:hidden;text-decoration:none !important;color:#fff;background-color:#5a6f78;text-align:center;cursor:pointer;white-space:nowrap}
.w3-container:after,.w3-container:before{content:"";display:table;clear:both}
.w3-container{padding:0.01em 16px}
.w3-right{float:right !important}
.w3-large{font-size:18px !important}
.w3-delta,.w3-hover-delta:hover{color:#fff !important;background-color:#5a6f78 !important}
</style>
{{range .}}
<div class="w3-card-2">
<header class="w3-container w3-delta">
<h2>{{.Name}}</h2>
</header>
<div class="w3-container">
<p>👤 {{.Count}}</p>
{{if .LastPub}}
📝 {{.LastPub}}
{{end}}
<p>{{.Topic}}</p>
</div>
<a class="w3-btn w3-large" href="mailto:{{.BotAddr}}?body=/group_remove_{{.ID}}">« Leave</a>
<a class="w3-btn w3-large w3-right" href="mailto:{{.BotAddr}}?body=/group_join_{{.ID}}">Join »</a>
</div>
{{end}}
`

var cardListTemplate = template.Must(template.New("cardlist").Parse(cardListHTML))

func renderCardList(cards []card) (string, error) {
	var buf strings.Builder
	if err := cardListTemplate.Execute(&buf, cards); err != nil {
		return "", err
	}
	return buf.String(), nil
}

package throttle

import (
	"bytes"
	"regexp"
	"text/template"
)

// HeaderBarFields are the four dynamic values the injected fragment
// displays or drives.
type HeaderBarFields struct {
	URL         string
	ArchiveDate string // YYYYMMDD
	BrandText   string
	// SpeedOptions lists the speed names offered by the dropdown; empty
	// means the speed selector is disabled.
	SpeedOptions []Speed
}

// headerBarTemplate renders an IE4/IE5-compatible fragment: var only,
// no arrow functions, no let/const, no template literals.
var headerBarTemplate = template.Must(template.New("headerbar").Parse(`<div id="wayback-header-bar" style="position:relative;width:100%;background:#1a1a2e;color:#eee;font-family:Arial,Helvetica,sans-serif;font-size:12px;padding:4px 8px;border-bottom:2px solid #0f3460;">
<span>{{.BrandText}}</span>
&nbsp;|&nbsp;<span>{{.URL}}</span>
&nbsp;|&nbsp;<span>archived {{.ArchiveDate}}</span>
{{if .SpeedOptions}}
&nbsp;|&nbsp;<select id="wayback-speed-select" onchange="waybackSetSpeed(this.value)">
{{range .SpeedOptions}}<option value="{{.}}">{{.}}</option>
{{end}}</select>
<script type="text/javascript">
function waybackSetSpeed(value) {
  var oneYear = 60 * 60 * 24 * 365;
  document.cookie = "wayback_speed=" + value + "; max-age=" + oneYear + "; path=/";
  window.location.reload();
}
</script>
{{end}}
</div>
`))

// RenderHeaderBar expands the fragment template for fields.
func RenderHeaderBar(fields HeaderBarFields) ([]byte, error) {
	var buf bytes.Buffer
	if err := headerBarTemplate.Execute(&buf, fields); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

var bodyTagRe = regexp.MustCompile(`(?i)<body[^>]*>`)

// InjectHeaderBar splices fragment into body immediately after the
// first opening <body> tag, or prepends it if the body has none.
func InjectHeaderBar(body []byte, fragment []byte) []byte {
	loc := bodyTagRe.FindIndex(body)
	if loc == nil {
		out := make([]byte, 0, len(fragment)+len(body))
		out = append(out, fragment...)
		out = append(out, body...)
		return out
	}
	out := make([]byte, 0, len(body)+len(fragment))
	out = append(out, body[:loc[1]]...)
	out = append(out, fragment...)
	out = append(out, body[loc[1]:]...)
	return out
}

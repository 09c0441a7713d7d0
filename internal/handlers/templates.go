package handlers

import (
	"html/template"

	"github.com/Brownie44l1/trapcam/internal/gallery"
)

type pageData struct {
	State       gallery.State
	Model       string
	Development bool
}

var templateFuncs = template.FuncMap{
	"inc": func(i int) int { return i + 1 },
}

const indexTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>Animal Classifier</title>
<style>
body { background: #282c34; color: #fff; font-family: sans-serif; text-align: center; }
ul { list-style: none; display: flex; flex-wrap: wrap; justify-content: center; padding: 0; }
li { margin: 1em; width: 320px; min-height: 240px; }
.image { max-width: 320px; max-height: 240px; }
.positive { color: #3c3; }
.negative { color: #e33; }
.loading-icon-small, .loading-icon-large { display: inline-block; border-radius: 50%; border: 4px solid #555; border-top-color: #fff; animation: spin 1s linear infinite; }
.loading-icon-small { width: 24px; height: 24px; }
.loading-icon-large { width: 96px; height: 96px; margin-top: 72px; }
@keyframes spin { to { transform: rotate(360deg); } }
button { font-size: 1.2em; margin: 0 .5em; }
</style>
</head>
<body data-folder="{{.State.Folder}}" data-page="{{.State.Page}}" data-loading="{{.State.Loading}}">
<h1>Animal Classifier</h1>
<p>{{.State.Folder}} &middot; {{.State.Total}} images &middot; page {{inc .State.Page}}{{if .Model}} &middot; {{.Model}}{{end}}{{if .Development}} &middot; development{{end}}</p>
<ul>
{{- range $i, $slot := .State.Slots}}
<li id="slot-{{$i}}">
{{- if $.State.Loading}}
  <span class="loading-icon-large"></span>
{{- else if $slot.Src}}
  <a href="{{$slot.Src}}" target="_blank" rel="noreferrer"><img src="{{$slot.Src}}" class="image" alt="" crossorigin="anonymous"></a>
  {{- if $slot.Label}}
  <h2><span>{{$slot.Name}}: </span><span class="label {{if $slot.Positive}}positive{{else}}negative{{end}}">{{$slot.Label}}</span></h2>
  {{- else}}
  <h2 class="pending"><span class="loading-icon-small"></span></h2>
  {{- end}}
{{- end}}
</li>
{{- end}}
</ul>
<div class="App-btn__container">
<form method="post" action="/previous" style="display:inline"><button {{if not .State.HasPrevious}}disabled{{end}}>&#11013; Previous</button></form>
<form method="post" action="/predict" style="display:inline"><button {{if .Development}}disabled{{end}}>Predict</button></form>
<form method="post" action="/next" style="display:inline"><button {{if not .State.HasNext}}disabled{{end}}>Next &#10145;</button></form>
</div>
<form method="post" action="/folder"><input name="folder" value="{{.State.Folder}}"> <button>Open folder</button></form>
<script>
(function () {
  var body = document.body;
  var proto = location.protocol === "https:" ? "wss://" : "ws://";
  var ws = new WebSocket(proto + location.host + "/ws");
  ws.onmessage = function (ev) {
    var st = JSON.parse(ev.data);
    if (st.folder !== body.dataset.folder || String(st.page) !== body.dataset.page ||
        String(st.loading) !== body.dataset.loading) {
      location.reload();
      return;
    }
    st.slots.forEach(function (slot, i) {
      var li = document.getElementById("slot-" + i);
      if (!li || !slot.src || !slot.label) { return; }
      var h2 = li.querySelector("h2");
      if (!h2) { return; }
      h2.className = "";
      h2.innerHTML = "";
      var name = document.createElement("span");
      name.textContent = slot.name + ": ";
      var label = document.createElement("span");
      label.className = "label " + (slot.positive ? "positive" : "negative");
      label.textContent = slot.label;
      h2.appendChild(name);
      h2.appendChild(label);
    });
  };
})();
</script>
</body>
</html>
`

package main

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>camview</title>
<style>
body { font-family: sans-serif; margin: 1em; }
#status { margin: .5em 0; }
img { max-width: 100%; background: #222; }
</style>
</head>
<body>
<div id="status">connecting...</div>
<img id="view" alt="">
<form id="settings">
<label><input type="checkbox" id="auto"> auto exposure</label>
<label>exposure (ms) <input type="number" id="exposure" min="0.1" max="100" step="0.1" value="30"></label>
<label>gain <input type="number" id="gain" step="0.1"></label>
<button>apply</button>
</form>
<script>
const status = document.getElementById("status");
const view = document.getElementById("view");
const ws = new WebSocket((location.protocol === "https:" ? "wss://" : "ws://") + location.host + "/ws");
ws.binaryType = "blob";
let url = null;
ws.onmessage = (ev) => {
  if (ev.data instanceof Blob) {
    if (url) URL.revokeObjectURL(url);
    url = URL.createObjectURL(ev.data);
    view.src = url;
    return;
  }
  const msg = JSON.parse(ev.data);
  if (msg.type === "started") status.textContent = msg.width + "x" + msg.height + (msg.monochrome ? " mono" : " color");
  else if (msg.message) status.textContent = msg.message;
};
ws.onclose = () => { status.textContent += " (disconnected)"; };
setInterval(() => { if (ws.readyState === 1) ws.send(JSON.stringify({type: "ping"})); }, 5000);
document.getElementById("settings").onsubmit = (ev) => {
  ev.preventDefault();
  const msg = {
    type: "settings",
    autoExposure: document.getElementById("auto").checked,
    exposureMs: parseFloat(document.getElementById("exposure").value),
  };
  const gain = parseFloat(document.getElementById("gain").value);
  if (!isNaN(gain)) msg.gain = gain;
  ws.send(JSON.stringify(msg));
};
</script>
</body>
</html>
`

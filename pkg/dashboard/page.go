// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package dashboard

// indexPage is the whole UI. One static page, no framework: it seeds from
// /api/status and then follows the websocket.
const indexPage = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>aquastat</title>
<style>
  body { font-family: monospace; background: #10151c; color: #d8dee9; margin: 2em; }
  h1 { font-size: 1.2em; }
  table { border-collapse: collapse; }
  td { padding: 0.2em 1em 0.2em 0; }
  td.v { color: #88c0d0; }
  .running { color: #a3be8c; }
  .stopped { color: #bf616a; }
  #state { font-weight: bold; }
</style>
</head>
<body>
<h1>aquastat</h1>
<table>
  <tr><td>state</td><td class="v" id="state">&mdash;</td></tr>
  <tr><td>mode</td><td class="v" id="mode">&mdash;</td></tr>
  <tr><td>speed</td><td class="v"><span id="rpm">&mdash;</span> RPM</td></tr>
  <tr><td>power</td><td class="v"><span id="watts">&mdash;</span> W</td></tr>
  <tr><td>flow</td><td class="v"><span id="gpm">&mdash;</span> GPM</td></tr>
  <tr><td>error</td><td class="v" id="error">&mdash;</td></tr>
  <tr><td>frames</td><td class="v" id="frames">&mdash;</td></tr>
  <tr><td>updated</td><td class="v" id="age">&mdash;</td></tr>
</table>
<script>
function render(s) {
  var state = document.getElementById('state');
  if (!s.valid) { state.textContent = 'no data'; state.className = ''; }
  else if (s.running) { state.textContent = 'RUNNING' + (s.stale ? ' (stale)' : ''); state.className = 'running'; }
  else { state.textContent = 'STOPPED' + (s.stale ? ' (stale)' : ''); state.className = 'stopped'; }
  document.getElementById('mode').textContent = s.mode;
  document.getElementById('rpm').textContent = s.rpm;
  document.getElementById('watts').textContent = s.watts;
  document.getElementById('gpm').textContent = s.gpm;
  document.getElementById('error').textContent = '0x' + s.error.toString(16).padStart(2, '0');
  document.getElementById('frames').textContent = s.framesReceived + ' rx, ' + s.checksumErrors + ' bad, ' + s.timeouts + ' timeouts';
  document.getElementById('age').textContent = (s.ageMs / 1000).toFixed(1) + 's ago';
}
fetch('/api/status').then(function (r) { return r.json(); }).then(render);
function connect() {
  var ws = new WebSocket((location.protocol === 'https:' ? 'wss://' : 'ws://') + location.host + '/ws');
  ws.onmessage = function (ev) { render(JSON.parse(ev.data)); };
  ws.onclose = function () { setTimeout(connect, 2000); };
}
connect();
</script>
</body>
</html>
`

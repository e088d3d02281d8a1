package ui

// indexHTML is the whole status page. It leans on the MJPEG endpoints for
// video and on /ws for roster and log updates.
const indexHTML = `<!doctype html>
<html>
  <head>
    <meta charset="utf-8" />
    <title>Arena Vision System</title>
    <style>
      body { font-family: sans-serif; margin: 20px; }
      .row { display: flex; gap: 20px; flex-wrap: wrap; }
      .panel { flex: 1; min-width: 420px; }
      img { width: 100%; border: 1px solid #ccc; }
      h2 { margin: 10px 0; font-size: 18px; }
      .hint { color: #666; font-size: 13px; margin-top: 6px; }
      table { border-collapse: collapse; width: 100%; }
      th, td { border: 1px solid #ccc; padding: 4px 8px; font-size: 13px; text-align: left; }
      #syslog, #teamlog { height: 180px; overflow-y: scroll; border: 1px solid #ccc;
        font-family: monospace; font-size: 12px; padding: 4px; white-space: pre-wrap; }
      .offline { color: #999; }
    </style>
  </head>
  <body>
    <h1>Arena Vision System</h1>

    <div class="row">
      <div class="panel">
        <h2>Raw</h2>
        <img src="/video" />
      </div>
      <div class="panel">
        <h2>Raw + Marker Boxes</h2>
        <img src="/overlay" />
        <div class="hint">Green boxes drawn around detected markers.</div>
      </div>
    </div>

    <div class="row" style="margin-top: 20px;">
      <div class="panel">
        <h2>Cropped Arena</h2>
        <img src="/crop" />
        <div class="hint">Crop transform refreshes every 10 minutes; crop persists through marker blinks.</div>
      </div>
      <div class="panel">
        <h2>Teams</h2>
        <table id="roster">
          <thead><tr><th>Name</th><th>Type</th><th>Marker</th><th>Visible</th><th>x</th><th>y</th><th>&theta;</th></tr></thead>
          <tbody></tbody>
        </table>
        <h2>System Printouts</h2>
        <div id="syslog"></div>
        <h2>Team Printouts</h2>
        <div id="teamlog"></div>
      </div>
    </div>

    <script>
      const syslog = document.getElementById("syslog");
      const teamlog = document.getElementById("teamlog");
      const rosterBody = document.querySelector("#roster tbody");

      function appendLine(el, text) {
        el.textContent += text + "\n";
        el.scrollTop = el.scrollHeight;
      }

      function renderRoster(teams) {
        rosterBody.innerHTML = "";
        for (const t of teams) {
          const tr = document.createElement("tr");
          if (!t.connected) tr.className = "offline";
          const cells = [t.name, t.teamType, t.aruco,
            t.visible ? "yes" : "no",
            t.x.toFixed(2), t.y.toFixed(2), t.theta.toFixed(2)];
          for (const c of cells) {
            const td = document.createElement("td");
            td.textContent = c;
            tr.appendChild(td);
          }
          rosterBody.appendChild(tr);
        }
      }

      function connect() {
        const ws = new WebSocket("ws://" + location.host + "/ws");
        ws.onmessage = (ev) => {
          const e = JSON.parse(ev.data);
          if (e.type === "team_roster") renderRoster(e.teams);
          else if (e.type === "system_log") appendLine(syslog, e.line);
          else if (e.type === "team_log") appendLine(teamlog, e.team + " | " + e.line);
          else if (e.type === "team_ml_image") appendLine(teamlog, e.team + " | [ml request image]");
        };
        ws.onclose = () => {
          appendLine(syslog, "[WARN] event stream lost, reconnecting...");
          setTimeout(connect, 2000);
        };
      }
      connect();
    </script>
  </body>
</html>
`

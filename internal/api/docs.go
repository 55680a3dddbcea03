package api

const docsHTML = `<!doctype html>
<html lang="en" data-theme="dark">
<head>
  <meta charset="utf-8" />
  <meta name="viewport" content="width=device-width, initial-scale=1" />
  <title>Slash Resolver API</title>
  <style>
    body {
      margin: 0 auto;
      max-width: 860px;
      padding: 24px;
      font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, sans-serif;
      font-size: 14px;
      line-height: 1.65;
      background: #0d1117;
      color: #c9d1d9;
    }
    a { color: #58a6ff; text-decoration: none; }
    h1, h2 { color: #e6edf3; }
    h2 { border-bottom: 1px solid #30363d; padding-bottom: 4px; margin-top: 32px; }
    code, pre { font-family: ui-monospace, SFMono-Regular, Menlo, monospace; font-size: 13px; }
    pre { background: #161b22; border: 1px solid #30363d; border-radius: 6px; padding: 12px; overflow-x: auto; }
    table { border-collapse: collapse; width: 100%; }
    th, td { border: 1px solid #30363d; padding: 6px 10px; text-align: left; vertical-align: top; }
    th { background: #161b22; }
  </style>
</head>
<body>
  <h1>Slash Resolver</h1>
  <p>slashd watches the browser over the DevTools protocol. Typing <code>s/&lt;name&gt;</code> in the
  address bar (or searching for <code>s/&lt;name&gt;</code> on Google, Bing, Baidu or DuckDuckGo)
  sends the tab to <code>&lt;instance&gt;/s/&lt;name&gt;</code>. Until an instance URL is set,
  shortcuts are left alone.</p>
  <p>Machine-readable schema: <a href="/openapi.json">/openapi.json</a> &middot;
  Event stream: <a href="/docs/events">/docs/events</a></p>

  <h2>Settings</h2>
  <table>
    <thead><tr><th>Route</th><th>Behaviour</th></tr></thead>
    <tbody>
      <tr><td><code>GET /api/v1/settings/instance</code></td><td>Current instance URL. 404 when none is set.</td></tr>
      <tr><td><code>PUT /api/v1/settings/instance</code></td><td>Body <code>{"instance_url": "https://slash.example.com"}</code>. Absolute http(s) only, no query or fragment; 400 otherwise.</td></tr>
      <tr><td><code>DELETE /api/v1/settings/instance</code></td><td>Clears the instance URL (204). Shortcuts are ignored until it is set again.</td></tr>
    </tbody>
  </table>

  <h2>Resolve</h2>
  <table>
    <thead><tr><th>Route</th><th>Behaviour</th></tr></thead>
    <tbody>
      <tr><td><code>POST /api/v1/resolve</code></td><td>Body <code>{"url": "..."}</code>. Reports the shortcut name, its source and the redirect target without touching any tab.</td></tr>
    </tbody>
  </table>
  <pre><code>$ curl -s -X POST http://127.0.0.1:8288/api/v1/resolve -d '{"url":"https://www.google.com/search?q=s/docs"}'
{"url":"https://www.google.com/search?q=s/docs","matched":true,"name":"docs","source":"google","target":"https://slash.example.com/s/docs","outcome":"redirected"}</code></pre>

  <h2>Status</h2>
  <table>
    <thead><tr><th>Route</th><th>Behaviour</th></tr></thead>
    <tbody>
      <tr><td><code>GET /health</code></td><td><code>ok</code> while the browser connection is up, <code>degraded</code> after it is lost.</td></tr>
      <tr><td><code>GET /api/v1/tabs</code></td><td>Page tabs being watched. 502 when the browser is unreachable.</td></tr>
      <tr><td><code>GET /api/v1/stats</code></td><td>Resolutions by outcome, the last resolution, audit and stream drop counters, active search providers.</td></tr>
      <tr><td><code>GET /api/v1/events</code></td><td>Server-Sent Events, one per resolution or settings change. See <a href="/docs/events">event stream docs</a>.</td></tr>
    </tbody>
  </table>

  <h2>Errors</h2>
  <p>Errors use <code>application/problem+json</code>. A settings store failure is 503.</p>
</body>
</html>`

package api

const eventsDocsHTML = `<!doctype html>
<html lang="en">
<head>
  <meta charset="utf-8" />
  <meta name="viewport" content="width=device-width, initial-scale=1" />
  <title>Event Stream - Slash Resolver</title>
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
    th, td { border: 1px solid #30363d; padding: 6px 10px; text-align: left; }
    th { background: #161b22; }
  </style>
</head>
<body>
  <p><a href="/docs">&larr; API reference</a></p>
  <h1>Event Stream</h1>
  <p>Every intercepted navigation and every instance URL change is published as a Server-Sent Event.</p>

  <h2>Endpoint</h2>
  <pre><code>GET /api/v1/events?outcomes=redirected,navigation_failed</code></pre>
  <p><code>outcomes</code> is optional; without it every event is delivered.</p>

  <h2>Event types</h2>
  <table>
    <thead><tr><th>Event</th><th>Meaning</th></tr></thead>
    <tbody>
      <tr><td><code>redirected</code></td><td>The tab was sent to <code>&lt;instance&gt;/s/&lt;name&gt;</code>.</td></tr>
      <tr><td><code>no_match</code></td><td>The URL carried no shortcut; the navigation continued.</td></tr>
      <tr><td><code>empty_name</code></td><td>A shortcut with an empty name was ignored.</td></tr>
      <tr><td><code>unconfigured</code></td><td>No instance URL is set; the navigation continued.</td></tr>
      <tr><td><code>config_unavailable</code></td><td>The settings store could not be read.</td></tr>
      <tr><td><code>navigation_failed</code></td><td>The browser rejected the redirect. It is not retried.</td></tr>
      <tr><td><code>settings</code></td><td>The instance URL was set or cleared.</td></tr>
    </tbody>
  </table>

  <h2>Example</h2>
  <pre><code>$ curl -N http://127.0.0.1:8288/api/v1/events?outcomes=redirected
event: redirected
data: {"id":"6f1c...","time":"2026-01-02T03:04:05Z","kind":"resolution","tab_id":"8F3A...","request_url":"http://s/docs","name":"docs","source":"pseudo-host","target":"https://slash.example.com/s/docs","outcome":"redirected"}</code></pre>

  <h2>Delivery</h2>
  <p>Each client has a 256 event buffer. Slow clients miss events rather than delaying redirects.
  The same records are appended to the JSONL audit log under <code>SLASH_AUDIT_DIR</code>.</p>
</body>
</html>`

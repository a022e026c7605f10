package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	HTTPRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "escola", Name: "http_requests_total", Help: "Handled HTTP requests",
	}, []string{"method", "route", "status"})
	Logins = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "escola", Name: "logins_total", Help: "Login attempts",
	}, []string{"result"})
	Notifications = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "escola", Name: "notifications_total", Help: "Activity notifications sent",
	}, []string{"channel", "result"})
	DBPing = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "escola", Name: "db_ping_seconds", Help: "DB ping latency",
		Buckets: prometheus.DefBuckets,
	})
)

func init() {
	prometheus.MustRegister(HTTPRequests, Logins, Notifications, DBPing)
}

func Handler() http.Handler { return promhttp.Handler() }

func ObserveRequest(method, route string, status int) {
	HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
}

func ObserveLogin(ok bool) {
	Logins.WithLabelValues(result(ok)).Inc()
}

func ObserveNotification(channel string, ok bool) {
	Notifications.WithLabelValues(channel, result(ok)).Inc()
}

func ObserveDBPing(d time.Duration) { DBPing.Observe(d.Seconds()) }

func result(ok bool) string {
	if ok {
		return "ok"
	}
	return "error"
}

package ami

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const endpointsOutput = `
 Endpoint:  <Endpoint/CID.....................................>  <State.....>  <Channels.>
    I/OAuth:  <AuthId/UserName...........................................................>
        Aor:  <Aor............................................>  <MaxContact>
  Transport:  <TransportId........>  <Type>  <cos>  <tos>  <BindAddress..................>
==========================================================================================

1001/1001 transport-udp Available sip:1001@10.0.0.21:5060 12.3
1002/1002 transport-udp Unavailable
broken/line
`

func TestParsePeers(t *testing.T) {
	peers := TextParser{}.ParsePeers(endpointsOutput)

	require.Len(t, peers, 2)
	assert.Equal(t, Peer{
		Endpoint:  "1001/1001",
		Transport: "transport-udp",
		State:     "Available",
		Contact:   "sip:1001@10.0.0.21:5060 12.3",
	}, peers[0])
	assert.Equal(t, "N/A", peers[1].Contact)
	assert.Equal(t, "Unavailable", peers[1].State)
}

func TestParsePeersEmpty(t *testing.T) {
	peers := TextParser{}.ParsePeers("")
	assert.NotNil(t, peers)
	assert.Empty(t, peers)
}

const queueOutput = `support has 3 callers in 'ringall' strategy (5 max)
   Members:
      SIP/1001 (Unavailable) has taken no calls yet
      SIP/1002 (Busy) has taken 4 calls
      SIP/1003 (Not in use) has taken no calls yet
   Callers:
      1. PJSIP/trunk-00000011 (wait: 0:12, prio: 0)
sales has 0 callers (10 max) in 'rrmemory' strategy
   No Members
garbage line with SIP/ but no status
`

func TestParseQueues(t *testing.T) {
	queues := TextParser{}.ParseQueues(queueOutput)

	require.Len(t, queues, 2)

	support := queues[0]
	assert.Equal(t, "support", support.Name)
	assert.Equal(t, 3, support.Callers)
	assert.Equal(t, 5, support.Max)
	assert.Equal(t, []QueueMember{
		{Interface: "SIP/1001", Status: "Unavailable"},
		{Interface: "SIP/1002", Status: "Busy"},
	}, support.Members)

	sales := queues[1]
	assert.Equal(t, "sales", sales.Name)
	assert.Equal(t, 0, sales.Callers)
	assert.Equal(t, 10, sales.Max)
	assert.Empty(t, sales.Members)
}

func TestParseQueuesSingleLineHeader(t *testing.T) {
	queues := TextParser{}.ParseQueues("support has 3 callers (SIP/1001 (Not in use))(5 max)")

	require.Len(t, queues, 1)
	assert.Equal(t, "support", queues[0].Name)
	assert.Equal(t, 3, queues[0].Callers)
	assert.Equal(t, 5, queues[0].Max)
}

func TestParseQueuesIgnoresMembersBeforeHeader(t *testing.T) {
	queues := TextParser{}.ParseQueues("      SIP/1001 (Busy) has taken 1 calls\n")
	assert.Empty(t, queues)
}

func TestParseChannelCount(t *testing.T) {
	p := TextParser{}
	assert.Equal(t, 4, p.ParseChannelCount("Channel ...\n4 active channels\n2 active calls\n"))
	assert.Equal(t, 1, p.ParseChannelCount("1 active channel\n"))
	assert.Equal(t, 0, p.ParseChannelCount("no channels here"))
}
